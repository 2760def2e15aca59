// Package domain provides core domain models and types shared by the
// accounting modules. The domain layer is pure: it has no infrastructure
// dependencies and defines only the contracts consumed across modules.
package domain

// SecurityType represents the class of a tradable instrument
type SecurityType string

const (
	// SecurityTypeEquity represents individual stocks/shares
	SecurityTypeEquity SecurityType = "EQUITY"
	// SecurityTypeOption represents exchange-traded option contracts
	SecurityTypeOption SecurityType = "OPTION"
	// SecurityTypeFuture represents futures contracts (margin-settled)
	SecurityTypeFuture SecurityType = "FUTURE"
	// SecurityTypeForex represents spot currency pairs
	SecurityTypeForex SecurityType = "FOREX"
	// SecurityTypeCfd represents contracts for difference (margin-settled)
	SecurityTypeCfd SecurityType = "CFD"
	// SecurityTypeCrypto represents cryptocurrency pairs
	SecurityTypeCrypto SecurityType = "CRYPTO"
	// SecurityTypeIndex represents market indices (non-tradeable)
	SecurityTypeIndex SecurityType = "INDEX"
)

// Markets known to the symbol-properties registry
const (
	MarketUSA   = "usa"
	MarketOanda = "oanda"
	MarketGDAX  = "gdax"
	MarketCFD   = "cfd"
	MarketSSE   = "sse" // Shanghai - T+1 delivery
)

// CurrencyPairTypes are the security classes searched during conversion-pair
// discovery. Order matters: direct market-data feeds are preferred in this order.
var CurrencyPairTypes = []SecurityType{
	SecurityTypeForex,
	SecurityTypeCfd,
	SecurityTypeCrypto,
}

// IsCurrencyPairType reports whether t can price one currency in another.
func IsCurrencyPairType(t SecurityType) bool {
	for _, pt := range CurrencyPairTypes {
		if pt == t {
			return true
		}
	}
	return false
}

// IsMarginSettled reports whether holdings of this type are valued by
// unrealized profit only (no notional changes hands until settlement).
func (t SecurityType) IsMarginSettled() bool {
	return t == SecurityTypeFuture || t == SecurityTypeCfd
}

// Money represents a monetary value with currency
type Money struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

// NewMoney creates a new Money value
func NewMoney(amount float64, currency string) Money {
	return Money{
		Amount:   amount,
		Currency: currency,
	}
}

// SymbolProperties describes the static trading attributes of an instrument,
// sourced from the symbol-properties registry at setup time.
type SymbolProperties struct {
	Description           string  `json:"description"`
	QuoteCurrency         string  `json:"quote_currency"`
	ContractMultiplier    float64 `json:"contract_multiplier"`
	MinimumPriceVariation float64 `json:"minimum_price_variation"`
	LotSize               float64 `json:"lot_size"`
	// SettlementDays is the delivery delay for sale proceeds. 0 means funds
	// settle immediately (T+0); 1 or more defers proceeds to the unsettled
	// cash book until the settlement scan matures them.
	SettlementDays int `json:"settlement_days"`
}

// DefaultSymbolProperties returns properties for a plain T+0 instrument
// quoted in the given currency.
func DefaultSymbolProperties(quoteCurrency string) SymbolProperties {
	return SymbolProperties{
		QuoteCurrency:         quoteCurrency,
		ContractMultiplier:    1,
		MinimumPriceVariation: 0.01,
		LotSize:               1,
	}
}
