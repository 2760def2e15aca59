package buyingpower

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aprovatas/margind/internal/domain"
	"github.com/aprovatas/margind/internal/modules/holdings"
	"github.com/rs/zerolog"
)

// SecurityMarginModel is the standard margin-account buying-power model.
//
// Responsibilities:
//   - Map leverage to initial and maintenance margin requirements
//   - Admit or reject orders against free margin
//   - Solve for the largest order reaching a target portfolio allocation
//   - Report reserved margin per position
//
// It also serves the portfolio aggregator as its maintenance-requirement
// source, so total margin used and the admission checks always agree.
type SecurityMarginModel struct {
	mu sync.RWMutex

	initialMarginRequirement       float64
	maintenanceMarginRequirement   float64
	requiredFreeBuyingPowerPercent float64

	converter domain.CurrencyConverter
	feeModel  domain.FeeModel
	models    ModelSource

	log zerolog.Logger
}

// Config holds the margin model's constructor parameters. Set Leverage, or
// set the two requirements explicitly; Leverage wins when both are present.
type Config struct {
	Leverage                       float64
	InitialMarginRequirement       float64
	MaintenanceMarginRequirement   float64
	RequiredFreeBuyingPowerPercent float64
	Converter                      domain.CurrencyConverter
	FeeModel                       domain.FeeModel
	// Models resolves the model configured for other symbols, used when an
	// option exercise delegates to the underlying's own engine. Optional:
	// nil falls back to checking the underlying with this model.
	Models ModelSource
	Log    zerolog.Logger
}

// NewSecurityMarginModel validates the margin configuration and builds the
// model. Leverage below 1 and requirements outside (0,1] are configuration
// faults rejected at construction.
func NewSecurityMarginModel(cfg Config) (*SecurityMarginModel, error) {
	initial := cfg.InitialMarginRequirement
	maintenance := cfg.MaintenanceMarginRequirement
	if cfg.Leverage != 0 {
		if cfg.Leverage < 1 {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidLeverage, cfg.Leverage)
		}
		initial = 1 / cfg.Leverage
		maintenance = 1 / cfg.Leverage
	}
	if initial <= 0 || initial > 1 {
		return nil, fmt.Errorf("%w: initial %v", domain.ErrInvalidMarginRequirement, initial)
	}
	if maintenance <= 0 || maintenance > 1 {
		return nil, fmt.Errorf("%w: maintenance %v", domain.ErrInvalidMarginRequirement, maintenance)
	}
	if cfg.RequiredFreeBuyingPowerPercent < 0 || cfg.RequiredFreeBuyingPowerPercent >= 1 {
		return nil, fmt.Errorf("%w: required free buying power percent %v",
			domain.ErrInvalidMarginRequirement, cfg.RequiredFreeBuyingPowerPercent)
	}
	if cfg.Converter == nil {
		return nil, fmt.Errorf("failed to create margin model: currency converter is required")
	}
	feeModel := cfg.FeeModel
	if feeModel == nil {
		feeModel = domain.ZeroFeeModel{}
	}
	return &SecurityMarginModel{
		initialMarginRequirement:       initial,
		maintenanceMarginRequirement:   maintenance,
		requiredFreeBuyingPowerPercent: cfg.RequiredFreeBuyingPowerPercent,
		converter:                      cfg.Converter,
		feeModel:                       feeModel,
		models:                         cfg.Models,
		log:                            cfg.Log.With().Str("service", "buyingpower").Logger(),
	}, nil
}

// Leverage returns 1 / maintenance margin requirement
func (m *SecurityMarginModel) Leverage() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return 1 / m.maintenanceMarginRequirement
}

// SetLeverage reconfigures both requirements to 1/leverage
func (m *SecurityMarginModel) SetLeverage(leverage float64) error {
	if leverage < 1 {
		return fmt.Errorf("%w: %v", domain.ErrInvalidLeverage, leverage)
	}
	m.mu.Lock()
	m.initialMarginRequirement = 1 / leverage
	m.maintenanceMarginRequirement = 1 / leverage
	m.mu.Unlock()
	return nil
}

// InitialMarginRequirement returns the capital fraction of order notional
// required to open a position
func (m *SecurityMarginModel) InitialMarginRequirement() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialMarginRequirement
}

// MaintenanceMarginRequirement returns the capital fraction of position cost
// required to keep a position open. Implements the aggregator's
// maintenance-requirement contract.
func (m *SecurityMarginModel) MaintenanceMarginRequirement() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maintenanceMarginRequirement
}

// RequiredFreeBuyingPowerPercent returns the portfolio fraction held back
// from every admission check and solve
func (m *SecurityMarginModel) RequiredFreeBuyingPowerPercent() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requiredFreeBuyingPowerPercent
}

// HasSufficientBuyingPowerForOrder checks whether the order can be admitted
// given current free margin.
func (m *SecurityMarginModel) HasSufficientBuyingPowerForOrder(p PortfolioReader, security *domain.Security, order *domain.Order) (HasSufficientBuyingPowerForOrderResult, error) {
	if order.Quantity == 0 {
		return Sufficient(), nil
	}

	ticket, ok := p.GetOrderTicket(order.ID)
	if !ok {
		return Insufficient("order ticket not found"),
			fmt.Errorf("%w: order %s", domain.ErrMissingOrderTicket, order.ID)
	}

	if order.Type == domain.OrderTypeOptionExercise {
		return m.checkOptionExercise(p, security, order)
	}

	// Orders that strictly reduce an existing position are always admitted;
	// margin state must never block de-risking.
	if set, ok := p.Holdings(security.Symbol.Value); ok {
		position := set.Quantity()
		if position != 0 && oppositeSigns(position, order.Quantity) &&
			order.AbsQuantity() <= math.Abs(position) {
			return Sufficient(), nil
		}
	}

	feeInAccountCurrency, err := m.orderFeeInAccountCurrency(security, order)
	if err != nil {
		return Insufficient(err.Error()), err
	}

	price := m.orderPrice(security, order)
	if price == 0 {
		return Insufficient(fmt.Sprintf("no market data for %s", security.Symbol.Value)), nil
	}
	notionalQuote := order.Quantity * price * security.Props.ContractMultiplier
	notional, err := m.converter.ConvertToAccountCurrency(notionalQuote, security.QuoteCurrency())
	if err != nil {
		return Insufficient(err.Error()), fmt.Errorf("failed to convert order notional: %w", err)
	}

	m.mu.RLock()
	initialRequirement := m.initialMarginRequirement
	m.mu.RUnlock()

	initialMarginRequired := notional*initialRequirement + math.Copysign(feeInAccountCurrency, notional)

	// Only the unfilled remainder of the order still needs margin
	if ticket.Quantity != 0 {
		initialMarginRequired *= ticket.UnfilledQuantity() / ticket.Quantity
	}

	freeMargin := m.GetBuyingPower(p, security, order.Direction()).Value
	if math.Abs(initialMarginRequired) > freeMargin {
		reason := fmt.Sprintf(
			"insufficient buying power for %s: initial margin required %.2f, free margin %.2f",
			security.Symbol.Value, math.Abs(initialMarginRequired), freeMargin)
		m.log.Debug().
			Str("symbol", security.Symbol.Value).
			Float64("initial_margin_required", math.Abs(initialMarginRequired)).
			Float64("free_margin", freeMargin).
			Msg("Order rejected")
		return Insufficient(reason), nil
	}
	return Sufficient(), nil
}

// checkOptionExercise admits an exercise order by checking the underlying.
// Cash-settled contracts (no underlying) settle in cash and pass trivially;
// physical delivery synthesizes a limit order at the strike and routes it
// through the underlying's own configured model when one is registered.
func (m *SecurityMarginModel) checkOptionExercise(p PortfolioReader, security *domain.Security, order *domain.Order) (HasSufficientBuyingPowerForOrderResult, error) {
	if security.Underlying == nil {
		return Sufficient(), nil
	}
	delivery := &domain.Order{
		ID:         order.ID,
		Symbol:     security.Underlying.Symbol,
		Type:       domain.OrderTypeLimit,
		Quantity:   order.Quantity * security.Props.ContractMultiplier,
		LimitPrice: security.StrikePrice,
		Time:       order.Time,
	}
	var target Model = m
	if m.models != nil {
		if underlyingModel, ok := m.models.ModelFor(security.Underlying.Symbol.Value); ok {
			target = underlyingModel
		}
	}
	return target.HasSufficientBuyingPowerForOrder(p, security.Underlying, delivery)
}

// GetMaximumOrderQuantityForTargetValue solves for the largest order that
// moves the holding to targetFraction of total portfolio value (net of the
// required free buying power reserve). The order value and its fee interact
// through the lot-size floor, so the solve iterates: each pass recomputes
// the fee at the current quantity and trims whole lots on overshoot.
func (m *SecurityMarginModel) GetMaximumOrderQuantityForTargetValue(p PortfolioReader, security *domain.Security, targetFraction float64) (GetMaximumOrderQuantityResult, error) {
	m.mu.RLock()
	reserve := m.requiredFreeBuyingPowerPercent
	m.mu.RUnlock()

	totalValue := p.TotalPortfolioValue()
	targetValue := targetFraction * (totalValue - totalValue*reserve)

	currentQuote := 0.0
	if set, ok := p.Holdings(security.Symbol.Value); ok {
		currentQuote = set.HoldingsValue()
	}
	currentValue, err := m.converter.ConvertToAccountCurrency(currentQuote, security.QuoteCurrency())
	if err != nil {
		return GetMaximumOrderQuantityResult{IsError: true, Reason: err.Error()},
			fmt.Errorf("failed to convert holdings value: %w", err)
	}

	targetOrderValue := math.Abs(targetValue - currentValue)
	direction := 1.0
	if targetValue < currentValue {
		direction = -1
	}

	unitPriceQuote := security.Price() * security.Props.ContractMultiplier
	if unitPriceQuote == 0 {
		return GetMaximumOrderQuantityResult{
			Reason: fmt.Sprintf("no market data for %s yet, cannot size order", security.Symbol.Value),
		}, nil
	}
	unitPrice, err := m.converter.ConvertToAccountCurrency(unitPriceQuote, security.QuoteCurrency())
	if err != nil {
		return GetMaximumOrderQuantityResult{IsError: true, Reason: err.Error()},
			fmt.Errorf("failed to convert unit price: %w", err)
	}

	lotSize := security.Props.LotSize
	if lotSize <= 0 {
		lotSize = 1
	}
	quantity := math.Floor(targetOrderValue/unitPrice/lotSize) * lotSize
	if quantity == 0 {
		return GetMaximumOrderQuantityResult{
			Reason: fmt.Sprintf(
				"target order value %.2f is less than one lot of %s (lot size %v at unit price %.2f)",
				targetOrderValue, security.Symbol.Value, lotSize, unitPrice),
		}, nil
	}

	var lastQuantity float64
	for iteration := 0; ; iteration++ {
		order := &domain.Order{
			ID:       domain.NewOrderID(),
			Symbol:   security.Symbol,
			Type:     domain.OrderTypeMarket,
			Quantity: direction * quantity,
			Time:     time.Now().UTC(),
		}
		feeInAccountCurrency, err := m.orderFeeInAccountCurrency(security, order)
		if err != nil {
			return GetMaximumOrderQuantityResult{IsError: true, Reason: err.Error()}, err
		}

		netTarget := targetOrderValue - feeInAccountCurrency
		orderValue := quantity * unitPrice

		if orderValue <= netTarget && iteration >= 1 {
			break
		}

		if orderValue > netTarget {
			// Trim whole lots proportional to the overshoot, at least one
			overshoot := orderValue - netTarget
			lots := math.Ceil(overshoot / (unitPrice * lotSize))
			if lots < 1 {
				lots = 1
			}
			quantity -= lots * lotSize
			if quantity <= 0 {
				return GetMaximumOrderQuantityResult{
					Reason: fmt.Sprintf(
						"target order value %.2f cannot cover one lot of %s plus fees",
						targetOrderValue, security.Symbol.Value),
				}, nil
			}
		}

		if iteration > 0 && quantity == lastQuantity {
			err := fmt.Errorf("%w: quantity %v repeated for %s",
				domain.ErrSolverDidNotConverge, quantity, security.Symbol.Value)
			m.log.Error().Err(err).Msg("Order sizing failed")
			return GetMaximumOrderQuantityResult{IsError: true, Reason: err.Error()}, err
		}
		lastQuantity = quantity
	}

	return GetMaximumOrderQuantityResult{Quantity: direction * quantity}, nil
}

// ReservedBuyingPowerForPosition returns the maintenance margin reserved by
// the open position across its Net/Long/Short buckets, in account currency
func (m *SecurityMarginModel) ReservedBuyingPowerForPosition(security *domain.Security, set *holdings.Set) ReservedBuyingPowerForPosition {
	if set == nil {
		return ReservedBuyingPowerForPosition{}
	}
	m.mu.RLock()
	maintenance := m.maintenanceMarginRequirement
	m.mu.RUnlock()

	reservedQuote := set.AbsoluteHoldingsCost() * maintenance
	reserved, err := m.converter.ConvertToAccountCurrency(reservedQuote, security.QuoteCurrency())
	if err != nil {
		m.log.Warn().
			Err(err).
			Str("symbol", security.Symbol.Value).
			Msg("Cannot convert reserved margin to account currency, reporting 0")
		return ReservedBuyingPowerForPosition{}
	}
	return ReservedBuyingPowerForPosition{Value: reserved}
}

// GetBuyingPower returns the free margin available for a new order in the
// given direction. An order that offsets the existing position releases that
// position's reserved margin and can redeploy it on the other side, hence
// the doubled credit.
func (m *SecurityMarginModel) GetBuyingPower(p PortfolioReader, security *domain.Security, direction domain.OrderDirection) BuyingPower {
	m.mu.RLock()
	reserve := m.requiredFreeBuyingPowerPercent
	m.mu.RUnlock()

	remaining := p.MarginRemaining() - p.TotalPortfolioValue()*reserve

	if set, ok := p.Holdings(security.Symbol.Value); ok && set.Invested() {
		reserved := m.ReservedBuyingPowerForPosition(security, set).Value
		switch {
		case direction == domain.OrderDirectionBuy && set.Quantity() < 0:
			remaining += 2 * reserved
		case direction == domain.OrderDirectionSell && set.Quantity() > 0:
			remaining += 2 * reserved
		}
	}
	return BuyingPower{Value: remaining}
}

// orderFeeInAccountCurrency computes the order's fee and converts it to
// account currency, unsigned
func (m *SecurityMarginModel) orderFeeInAccountCurrency(security *domain.Security, order *domain.Order) (float64, error) {
	fee, err := m.feeModel.GetOrderFee(security, order)
	if err != nil {
		return 0, fmt.Errorf("failed to compute order fee: %w", err)
	}
	if fee.Amount == 0 {
		return 0, nil
	}
	converted, err := m.converter.ConvertToAccountCurrency(fee.Amount, fee.Currency)
	if err != nil {
		return 0, fmt.Errorf("failed to convert order fee: %w", err)
	}
	return math.Abs(converted), nil
}

// orderPrice returns the limit price for limit orders, the market price
// otherwise
func (m *SecurityMarginModel) orderPrice(security *domain.Security, order *domain.Order) float64 {
	if order.Type == domain.OrderTypeLimit && order.LimitPrice > 0 {
		return order.LimitPrice
	}
	return security.Price()
}

func oppositeSigns(a, b float64) bool {
	return (a > 0 && b < 0) || (a < 0 && b > 0)
}

var _ Model = (*SecurityMarginModel)(nil)
