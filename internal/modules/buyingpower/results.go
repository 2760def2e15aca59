// Package buyingpower implements the margin engine: leverage configuration,
// order admission checks, reserved-margin computation, and the iterative
// target-quantity solver. Every check is a pure function of current
// portfolio and security state; no state machine spans calls.
package buyingpower

// HasSufficientBuyingPowerForOrderResult is the outcome of an order
// admission check. Reason is always populated on rejection so the order
// pipeline and the operator log can explain the decision.
type HasSufficientBuyingPowerForOrderResult struct {
	IsSufficient bool   `json:"is_sufficient"`
	Reason       string `json:"reason,omitempty"`
}

// Sufficient returns a passing admission result
func Sufficient() HasSufficientBuyingPowerForOrderResult {
	return HasSufficientBuyingPowerForOrderResult{IsSufficient: true}
}

// Insufficient returns a failing admission result with the given reason
func Insufficient(reason string) HasSufficientBuyingPowerForOrderResult {
	return HasSufficientBuyingPowerForOrderResult{IsSufficient: false, Reason: reason}
}

// GetMaximumOrderQuantityResult is the outcome of the target-quantity
// solver. A zero quantity with IsError false is a valid answer (the target
// rounds below one lot); IsError marks hard algorithmic failures.
type GetMaximumOrderQuantityResult struct {
	Quantity float64 `json:"quantity"`
	Reason   string  `json:"reason,omitempty"`
	IsError  bool    `json:"is_error"`
}

// ReservedBuyingPowerForPosition is the maintenance margin reserved by an
// open position, in account currency
type ReservedBuyingPowerForPosition struct {
	Value float64 `json:"value"`
}

// BuyingPower is the account-currency capital available for a new order in
// a given direction
type BuyingPower struct {
	Value float64 `json:"value"`
}
