package buyingpower

import (
	"github.com/aprovatas/margind/internal/domain"
	"github.com/aprovatas/margind/internal/modules/holdings"
)

// PortfolioReader is the read-only view of the portfolio aggregator the
// margin engine consumes. Defined here so the engine never imports the
// aggregator's mutation surface.
type PortfolioReader interface {
	TotalPortfolioValue() float64
	TotalMarginUsed() float64
	UnsettledCashTotal() float64
	MarginRemaining() float64

	// Per-settlement-currency partition, expressed in that currency
	TotalPortfolioValueForCurrency(currency string) float64
	TotalMarginUsedForCurrency(currency string) float64
	MarginRemainingForCurrency(currency string) float64

	// SettledCashBalance returns the settled balance in one currency
	SettledCashBalance(currency string) float64

	Holdings(symbolValue string) (*holdings.Set, bool)
	GetOrderTicket(orderID string) (*domain.OrderTicket, bool)
}

// Model is the buying-power contract the order pipeline calls. One model
// instance serves one security or one shared security class.
type Model interface {
	// Leverage returns 1 / maintenance margin requirement
	Leverage() float64
	// SetLeverage reconfigures both margin requirements to 1/leverage.
	// Rejects leverage below 1.
	SetLeverage(leverage float64) error

	InitialMarginRequirement() float64
	MaintenanceMarginRequirement() float64

	// HasSufficientBuyingPowerForOrder checks whether the order can be
	// admitted given current free margin. Soft rejections come back in the
	// result; a missing order ticket is a hard error.
	HasSufficientBuyingPowerForOrder(p PortfolioReader, security *domain.Security, order *domain.Order) (HasSufficientBuyingPowerForOrderResult, error)

	// GetMaximumOrderQuantityForTargetValue sizes the largest order that
	// moves the holding to targetFraction of total portfolio value. Zero
	// unit price and sub-lot targets are soft zero results; a
	// non-converging solve is a hard error.
	GetMaximumOrderQuantityForTargetValue(p PortfolioReader, security *domain.Security, targetFraction float64) (GetMaximumOrderQuantityResult, error)

	// ReservedBuyingPowerForPosition returns the maintenance margin the
	// open position reserves, in account currency
	ReservedBuyingPowerForPosition(security *domain.Security, set *holdings.Set) ReservedBuyingPowerForPosition

	// GetBuyingPower returns the capital available for a new order in the
	// given direction, in account currency
	GetBuyingPower(p PortfolioReader, security *domain.Security, direction domain.OrderDirection) BuyingPower
}
