package buyingpower

import (
	"sync"
)

// ModelRegistry maps symbols to their configured buying-power models.
// Injected wherever a model lookup is needed; no package-level state.
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewModelRegistry creates an empty model registry
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{models: make(map[string]Model)}
}

// Register binds a model to a symbol, replacing any previous binding
func (r *ModelRegistry) Register(symbolValue string, model Model) {
	r.mu.Lock()
	r.models[symbolValue] = model
	r.mu.Unlock()
}

// ModelFor returns the model configured for a symbol
func (r *ModelRegistry) ModelFor(symbolValue string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	model, ok := r.models[symbolValue]
	return model, ok
}

var _ ModelSource = (*ModelRegistry)(nil)
