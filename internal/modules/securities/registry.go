// Package securities provides the constructed security directory and
// symbol-properties registry injected into the accounting components at
// setup time. There are no process-wide singletons: each portfolio gets its
// own instances so multiple portfolios can coexist in one process and tests
// run against isolated fixtures.
package securities

import (
	"github.com/aprovatas/margind/internal/domain"
)

// PairEntry is one tradeable currency pair known to the registry
type PairEntry struct {
	Symbol domain.Symbol
	Props  domain.SymbolProperties
}

// PropertiesRegistry lists the symbol properties of every tradeable
// instrument per security type and market. It is read-only after
// construction and used during conversion-pair discovery.
type PropertiesRegistry struct {
	entries map[domain.SecurityType][]PairEntry
}

// NewPropertiesRegistry creates an empty registry
func NewPropertiesRegistry() *PropertiesRegistry {
	return &PropertiesRegistry{
		entries: make(map[domain.SecurityType][]PairEntry),
	}
}

// Register adds an instrument's properties to the registry
func (r *PropertiesRegistry) Register(symbol domain.Symbol, props domain.SymbolProperties) {
	r.entries[symbol.Type] = append(r.entries[symbol.Type], PairEntry{Symbol: symbol, Props: props})
}

// TradeablePairs returns all registered currency pairs for the given
// security types, in registration order
func (r *PropertiesRegistry) TradeablePairs(types []domain.SecurityType) []PairEntry {
	var pairs []PairEntry
	for _, t := range types {
		pairs = append(pairs, r.entries[t]...)
	}
	return pairs
}

// Get returns the registered properties for a symbol value within a type
func (r *PropertiesRegistry) Get(symbol domain.Symbol) (domain.SymbolProperties, bool) {
	for _, entry := range r.entries[symbol.Type] {
		if entry.Symbol.Value == symbol.Value {
			return entry.Props, true
		}
	}
	return domain.SymbolProperties{}, false
}
