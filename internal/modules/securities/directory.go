package securities

import (
	"fmt"
	"sync"

	"github.com/aprovatas/margind/internal/domain"
	"github.com/rs/zerolog"
)

// Directory is the live set of securities in one portfolio: every tradable
// instrument plus any internal conversion feeds the cash book has created.
// Fills, pair discovery, and market-data binding all go through it.
type Directory struct {
	mu         sync.RWMutex
	securities map[string]*domain.Security
	log        zerolog.Logger
}

// NewDirectory creates an empty security directory
func NewDirectory(log zerolog.Logger) *Directory {
	return &Directory{
		securities: make(map[string]*domain.Security),
		log:        log.With().Str("component", "securities").Logger(),
	}
}

// Add registers a security. Adding the same symbol twice returns the
// already-registered instance so holdings stay attached to one security.
func (d *Directory) Add(security *domain.Security) *domain.Security {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.securities[security.Symbol.Value]; ok {
		return existing
	}
	d.securities[security.Symbol.Value] = security
	return security
}

// Get returns the security registered for the symbol value
func (d *Directory) Get(value string) (*domain.Security, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sec, ok := d.securities[value]
	return sec, ok
}

// Find returns the first security whose symbol value matches and whose type
// is one of the given types
func (d *Directory) Find(value string, types []domain.SecurityType) (*domain.Security, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sec, ok := d.securities[value]
	if !ok {
		return nil, false
	}
	for _, t := range types {
		if sec.Symbol.Type == t {
			return sec, true
		}
	}
	return nil, false
}

// All returns a snapshot of every registered security
func (d *Directory) All() []*domain.Security {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*domain.Security, 0, len(d.securities))
	for _, sec := range d.securities {
		out = append(out, sec)
	}
	return out
}

// AddConversionSecurity creates and registers an internal (UI-hidden)
// security used only to price one currency in another. The market-data
// layer picks internal securities up and subscribes them at the lowest
// active resolution.
func (d *Directory) AddConversionSecurity(symbol domain.Symbol, props domain.SymbolProperties) (*domain.Security, error) {
	if symbol.IsZero() {
		return nil, fmt.Errorf("failed to add conversion security: empty symbol")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.securities[symbol.Value]; ok {
		return existing, nil
	}

	sec := domain.NewSecurity(symbol, props)
	sec.Internal = true
	d.securities[symbol.Value] = sec

	d.log.Info().
		Str("symbol", symbol.Value).
		Str("type", string(symbol.Type)).
		Str("market", symbol.Market).
		Msg("Added internal currency conversion security")

	return sec, nil
}
