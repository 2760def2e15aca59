package domain

import "strings"

// Symbol identifies a tradable instrument within a market.
type Symbol struct {
	Value  string       `json:"value"`
	Type   SecurityType `json:"type"`
	Market string       `json:"market"`
}

// NewSymbol creates a symbol with an upper-cased value
func NewSymbol(value string, securityType SecurityType, market string) Symbol {
	return Symbol{
		Value:  strings.ToUpper(strings.TrimSpace(value)),
		Type:   securityType,
		Market: market,
	}
}

// String returns the symbol value
func (s Symbol) String() string {
	return s.Value
}

// IsZero reports whether the symbol is unset
func (s Symbol) IsZero() bool {
	return s.Value == ""
}

// DecomposePair splits a currency-pair symbol value into base and quote
// currency using the registered quote currency. Returns false when the value
// does not end with the quote currency.
func DecomposePair(value, quoteCurrency string) (base, quote string, ok bool) {
	value = strings.ToUpper(value)
	quoteCurrency = strings.ToUpper(quoteCurrency)
	if quoteCurrency == "" || !strings.HasSuffix(value, quoteCurrency) || len(value) <= len(quoteCurrency) {
		return "", "", false
	}
	return strings.TrimSuffix(value, quoteCurrency), quoteCurrency, true
}
