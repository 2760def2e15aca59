package buyingpower

import (
	"fmt"
	"math"

	"github.com/aprovatas/margind/internal/domain"
	"github.com/aprovatas/margind/internal/modules/holdings"
	"github.com/rs/zerolog"
)

// VenueStrategy selects the collateral rule a venue applies. The variants
// replace a per-venue subclass hierarchy: each holds only the data it needs
// and delegates the shared margin math to the standard model.
type VenueStrategy string

const (
	// VenueStandard applies the plain margin-account rules unchanged
	VenueStandard VenueStrategy = "standard"
	// VenueCashOnly is a spot account: no leverage, buying power limited to
	// the settled balance of the instrument's quote currency
	VenueCashOnly VenueStrategy = "cash_only"
	// VenuePerSettlementCurrencyMargin partitions margin by settlement
	// currency so BTC-margined and ETH-margined instruments never share a
	// margin pool
	VenuePerSettlementCurrencyMargin VenueStrategy = "per_settlement_currency_margin"
	// VenueExternalCollateral posts collateral outside the portfolio (for
	// example an on-chain margin account) reported by a callback
	VenueExternalCollateral VenueStrategy = "external_collateral"
	// VenueInfiniteCollateral admits every order; used by venues that do
	// their own risk checks at execution time
	VenueInfiniteCollateral VenueStrategy = "infinite_collateral"
)

// CollateralFunc reports externally-posted collateral in account currency
type CollateralFunc func() float64

// VenueModel wraps the standard margin model with a venue collateral rule
type VenueModel struct {
	strategy   VenueStrategy
	base       *SecurityMarginModel
	collateral CollateralFunc
	log        zerolog.Logger
}

// NewVenueModel builds a venue-specific buying-power model around the given
// base model. ExternalCollateral venues must supply a collateral func;
// CashOnly venues are forced to leverage 1.
func NewVenueModel(strategy VenueStrategy, base *SecurityMarginModel, collateral CollateralFunc, log zerolog.Logger) (*VenueModel, error) {
	if base == nil {
		return nil, fmt.Errorf("failed to create venue model: base margin model is required")
	}
	switch strategy {
	case VenueStandard, VenueCashOnly, VenuePerSettlementCurrencyMargin,
		VenueExternalCollateral, VenueInfiniteCollateral:
	default:
		return nil, fmt.Errorf("failed to create venue model: unknown strategy %q", strategy)
	}
	if strategy == VenueExternalCollateral && collateral == nil {
		return nil, fmt.Errorf("failed to create venue model: external collateral strategy requires a collateral source")
	}
	if strategy == VenueCashOnly {
		if err := base.SetLeverage(1); err != nil {
			return nil, err
		}
	}
	return &VenueModel{
		strategy:   strategy,
		base:       base,
		collateral: collateral,
		log:        log.With().Str("service", "buyingpower").Str("venue_strategy", string(strategy)).Logger(),
	}, nil
}

// Strategy returns the venue collateral rule in effect
func (v *VenueModel) Strategy() VenueStrategy {
	return v.strategy
}

// Leverage returns the base model's leverage
func (v *VenueModel) Leverage() float64 {
	return v.base.Leverage()
}

// SetLeverage reconfigures the base model. Cash-only venues cannot lever.
func (v *VenueModel) SetLeverage(leverage float64) error {
	if v.strategy == VenueCashOnly {
		if leverage == 1 {
			return nil
		}
		return fmt.Errorf("%w: cash-only venue does not support leverage %v",
			domain.ErrInvalidLeverage, leverage)
	}
	return v.base.SetLeverage(leverage)
}

// InitialMarginRequirement returns the base model's initial requirement
func (v *VenueModel) InitialMarginRequirement() float64 {
	return v.base.InitialMarginRequirement()
}

// MaintenanceMarginRequirement returns the base model's maintenance
// requirement
func (v *VenueModel) MaintenanceMarginRequirement() float64 {
	return v.base.MaintenanceMarginRequirement()
}

// HasSufficientBuyingPowerForOrder applies the venue collateral rule
func (v *VenueModel) HasSufficientBuyingPowerForOrder(p PortfolioReader, security *domain.Security, order *domain.Order) (HasSufficientBuyingPowerForOrderResult, error) {
	switch v.strategy {
	case VenueInfiniteCollateral:
		if order.Quantity != 0 {
			if _, ok := p.GetOrderTicket(order.ID); !ok {
				return Insufficient("order ticket not found"),
					fmt.Errorf("%w: order %s", domain.ErrMissingOrderTicket, order.ID)
			}
		}
		return Sufficient(), nil

	case VenueCashOnly:
		return v.checkCashOnly(p, security, order)

	case VenuePerSettlementCurrencyMargin:
		return v.checkPerSettlementCurrency(p, security, order)

	case VenueExternalCollateral:
		return v.checkExternalCollateral(p, security, order)

	default:
		return v.base.HasSufficientBuyingPowerForOrder(p, security, order)
	}
}

// checkExternalCollateral runs the standard admission steps but draws free
// margin from the externally-posted collateral instead of the portfolio
func (v *VenueModel) checkExternalCollateral(p PortfolioReader, security *domain.Security, order *domain.Order) (HasSufficientBuyingPowerForOrderResult, error) {
	if order.Quantity == 0 {
		return Sufficient(), nil
	}
	ticket, ok := p.GetOrderTicket(order.ID)
	if !ok {
		return Insufficient("order ticket not found"),
			fmt.Errorf("%w: order %s", domain.ErrMissingOrderTicket, order.ID)
	}

	if set, ok := p.Holdings(security.Symbol.Value); ok {
		position := set.Quantity()
		if position != 0 && oppositeSigns(position, order.Quantity) &&
			order.AbsQuantity() <= math.Abs(position) {
			return Sufficient(), nil
		}
	}

	feeInAccountCurrency, err := v.base.orderFeeInAccountCurrency(security, order)
	if err != nil {
		return Insufficient(err.Error()), err
	}
	price := v.base.orderPrice(security, order)
	if price == 0 {
		return Insufficient(fmt.Sprintf("no market data for %s", security.Symbol.Value)), nil
	}
	notionalQuote := order.Quantity * price * security.Props.ContractMultiplier
	notional, err := v.base.converter.ConvertToAccountCurrency(notionalQuote, security.QuoteCurrency())
	if err != nil {
		return Insufficient(err.Error()), fmt.Errorf("failed to convert order notional: %w", err)
	}

	required := notional*v.base.InitialMarginRequirement() + math.Copysign(feeInAccountCurrency, notional)
	if ticket.Quantity != 0 {
		required *= ticket.UnfilledQuantity() / ticket.Quantity
	}

	free := v.collateral()
	if math.Abs(required) > free {
		return Insufficient(fmt.Sprintf(
			"insufficient external collateral for %s: required %.2f, posted %.2f",
			security.Symbol.Value, math.Abs(required), free)), nil
	}
	return Sufficient(), nil
}

// checkPerSettlementCurrency runs the standard admission steps but keeps
// all amounts in the instrument's settlement currency and draws free margin
// from that currency's partition only
func (v *VenueModel) checkPerSettlementCurrency(p PortfolioReader, security *domain.Security, order *domain.Order) (HasSufficientBuyingPowerForOrderResult, error) {
	if order.Quantity == 0 {
		return Sufficient(), nil
	}
	ticket, ok := p.GetOrderTicket(order.ID)
	if !ok {
		return Insufficient("order ticket not found"),
			fmt.Errorf("%w: order %s", domain.ErrMissingOrderTicket, order.ID)
	}

	if set, ok := p.Holdings(security.Symbol.Value); ok {
		position := set.Quantity()
		if position != 0 && oppositeSigns(position, order.Quantity) &&
			order.AbsQuantity() <= math.Abs(position) {
			return Sufficient(), nil
		}
	}

	price := v.base.orderPrice(security, order)
	if price == 0 {
		return Insufficient(fmt.Sprintf("no market data for %s", security.Symbol.Value)), nil
	}
	notional := order.Quantity * price * security.Props.ContractMultiplier

	fee, err := v.base.feeModel.GetOrderFee(security, order)
	if err != nil {
		return Insufficient(err.Error()), fmt.Errorf("failed to compute order fee: %w", err)
	}
	feeInCurrency := 0.0
	if fee.Currency == security.QuoteCurrency() {
		feeInCurrency = math.Abs(fee.Amount)
	}

	required := notional*v.base.InitialMarginRequirement() + math.Copysign(feeInCurrency, notional)
	if ticket.Quantity != 0 {
		required *= ticket.UnfilledQuantity() / ticket.Quantity
	}

	free := v.GetBuyingPower(p, security, order.Direction()).Value
	if math.Abs(required) > free {
		return Insufficient(fmt.Sprintf(
			"insufficient %s margin for %s: required %.2f, free %.2f",
			security.QuoteCurrency(), security.Symbol.Value, math.Abs(required), free)), nil
	}
	return Sufficient(), nil
}

// checkCashOnly admits an order only when the settled balance of the quote
// currency covers its full notional plus fee. Sells of held quantity pass
// through the base model's risk-reducing rules.
func (v *VenueModel) checkCashOnly(p PortfolioReader, security *domain.Security, order *domain.Order) (HasSufficientBuyingPowerForOrderResult, error) {
	if order.Quantity <= 0 {
		return v.base.HasSufficientBuyingPowerForOrder(p, security, order)
	}

	if _, ok := p.GetOrderTicket(order.ID); !ok {
		return Insufficient("order ticket not found"),
			fmt.Errorf("%w: order %s", domain.ErrMissingOrderTicket, order.ID)
	}

	price := v.base.orderPrice(security, order)
	if price == 0 {
		return Insufficient(fmt.Sprintf("no market data for %s", security.Symbol.Value)), nil
	}
	notional := order.Quantity * price * security.Props.ContractMultiplier

	fee, err := v.base.feeModel.GetOrderFee(security, order)
	if err != nil {
		return Insufficient(err.Error()), fmt.Errorf("failed to compute order fee: %w", err)
	}
	required := notional
	if fee.Currency == security.QuoteCurrency() {
		required += math.Abs(fee.Amount)
	}

	available := p.SettledCashBalance(security.QuoteCurrency())
	if required > available {
		return Insufficient(fmt.Sprintf(
			"insufficient settled %s: required %.2f, available %.2f",
			security.QuoteCurrency(), required, available)), nil
	}
	return Sufficient(), nil
}

// GetMaximumOrderQuantityForTargetValue delegates the solve to the base
// model; the venue rule only changes what admission later allows
func (v *VenueModel) GetMaximumOrderQuantityForTargetValue(p PortfolioReader, security *domain.Security, targetFraction float64) (GetMaximumOrderQuantityResult, error) {
	return v.base.GetMaximumOrderQuantityForTargetValue(p, security, targetFraction)
}

// ReservedBuyingPowerForPosition delegates to the base model. Infinite
// collateral venues reserve nothing.
func (v *VenueModel) ReservedBuyingPowerForPosition(security *domain.Security, set *holdings.Set) ReservedBuyingPowerForPosition {
	if v.strategy == VenueInfiniteCollateral {
		return ReservedBuyingPowerForPosition{}
	}
	return v.base.ReservedBuyingPowerForPosition(security, set)
}

// GetBuyingPower applies the venue collateral rule to the capital available
// for a new order
func (v *VenueModel) GetBuyingPower(p PortfolioReader, security *domain.Security, direction domain.OrderDirection) BuyingPower {
	switch v.strategy {
	case VenueInfiniteCollateral:
		return BuyingPower{Value: math.Inf(1)}

	case VenueCashOnly:
		return BuyingPower{Value: p.SettledCashBalance(security.QuoteCurrency())}

	case VenueExternalCollateral:
		return BuyingPower{Value: v.collateral()}

	case VenuePerSettlementCurrencyMargin:
		currency := security.QuoteCurrency()
		remaining := p.MarginRemainingForCurrency(currency) -
			p.TotalPortfolioValueForCurrency(currency)*v.base.RequiredFreeBuyingPowerPercent()
		if set, ok := p.Holdings(security.Symbol.Value); ok && set.Invested() {
			reserved := set.AbsoluteHoldingsCost() * v.base.MaintenanceMarginRequirement()
			switch {
			case direction == domain.OrderDirectionBuy && set.Quantity() < 0:
				remaining += 2 * reserved
			case direction == domain.OrderDirectionSell && set.Quantity() > 0:
				remaining += 2 * reserved
			}
		}
		return BuyingPower{Value: remaining}

	default:
		return v.base.GetBuyingPower(p, security, direction)
	}
}

var _ Model = (*VenueModel)(nil)
