package buyingpower

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprovatas/margind/internal/domain"
	"github.com/aprovatas/margind/internal/modules/portfolio"
)

type failingFeeModel struct{}

func (failingFeeModel) GetOrderFee(*domain.Security, *domain.Order) (domain.Money, error) {
	return domain.Money{}, errors.New("fee schedule unavailable")
}

func newTestPortfolio(cash float64) *portfolio.Manager {
	m := portfolio.NewManager(portfolio.Config{
		AccountCurrency: "USD",
		Log:             zerolog.Nop(),
	})
	m.SetCash("USD", cash, 0)
	return m
}

func newEquity(value string, price float64) *domain.Security {
	sec := domain.NewSecurity(
		domain.NewSymbol(value, domain.SecurityTypeEquity, domain.MarketUSA),
		domain.DefaultSymbolProperties("USD"),
	)
	if price > 0 {
		sec.SetMarketPrice(price)
	}
	return sec
}

func newModel(t *testing.T, p *portfolio.Manager, cfg Config) *SecurityMarginModel {
	t.Helper()
	if cfg.Converter == nil {
		cfg.Converter = p.SettledCashBook()
	}
	cfg.Log = zerolog.Nop()
	model, err := NewSecurityMarginModel(cfg)
	require.NoError(t, err)
	return model
}

func submitOrder(t *testing.T, p *portfolio.Manager, sec *domain.Security, quantity float64) *domain.Order {
	t.Helper()
	order := &domain.Order{
		ID:       domain.NewOrderID(),
		Symbol:   sec.Symbol,
		Type:     domain.OrderTypeMarket,
		Quantity: quantity,
		Time:     time.Now().UTC(),
	}
	p.RegisterSecurity(sec, nil)
	require.NoError(t, p.RegisterOrderTicket(sec.Symbol.Value, &domain.OrderTicket{
		OrderID:  order.ID,
		Quantity: quantity,
		Status:   domain.OrderStatusSubmitted,
	}))
	return order
}

func TestNewSecurityMarginModelValidation(t *testing.T) {
	p := newTestPortfolio(0)
	converter := p.SettledCashBook()

	_, err := NewSecurityMarginModel(Config{Leverage: 0.5, Converter: converter})
	assert.ErrorIs(t, err, domain.ErrInvalidLeverage)

	_, err = NewSecurityMarginModel(Config{InitialMarginRequirement: 0, MaintenanceMarginRequirement: 0.5, Converter: converter})
	assert.ErrorIs(t, err, domain.ErrInvalidMarginRequirement)

	_, err = NewSecurityMarginModel(Config{InitialMarginRequirement: 0.5, MaintenanceMarginRequirement: 1.5, Converter: converter})
	assert.ErrorIs(t, err, domain.ErrInvalidMarginRequirement)

	_, err = NewSecurityMarginModel(Config{Leverage: 2, RequiredFreeBuyingPowerPercent: 1, Converter: converter})
	assert.ErrorIs(t, err, domain.ErrInvalidMarginRequirement)

	_, err = NewSecurityMarginModel(Config{Leverage: 2})
	assert.Error(t, err, "converter is required")

	model, err := NewSecurityMarginModel(Config{Leverage: 2, Converter: converter})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, model.InitialMarginRequirement(), 1e-9)
	assert.InDelta(t, 0.5, model.MaintenanceMarginRequirement(), 1e-9)
	assert.InDelta(t, 2, model.Leverage(), 1e-9)
}

func TestHasSufficientBuyingPowerAdmitsWithinMargin(t *testing.T) {
	p := newTestPortfolio(100000)
	model := newModel(t, p, Config{
		Leverage: 2,
		FeeModel: domain.FlatFeeModel{Fee: domain.NewMoney(1, "USD")},
	})
	sec := newEquity("AAPL", 50)
	order := submitOrder(t, p, sec, 10)

	// 10 * $50 at 2x leverage needs $250 margin plus the $1 fee
	result, err := model.HasSufficientBuyingPowerForOrder(p, sec, order)
	require.NoError(t, err)
	assert.True(t, result.IsSufficient)
}

func TestHasSufficientBuyingPowerRejectsBeyondMargin(t *testing.T) {
	p := newTestPortfolio(1000)
	model := newModel(t, p, Config{
		Leverage: 2,
		FeeModel: domain.FlatFeeModel{Fee: domain.NewMoney(1, "USD")},
	})
	sec := newEquity("AAPL", 50)
	order := submitOrder(t, p, sec, 100)

	// Required 100*50*0.5 + 1 = 2501 against 1000 of free margin
	result, err := model.HasSufficientBuyingPowerForOrder(p, sec, order)
	require.NoError(t, err)
	assert.False(t, result.IsSufficient)
	assert.NotEmpty(t, result.Reason)
}

func TestHasSufficientBuyingPowerZeroQuantity(t *testing.T) {
	p := newTestPortfolio(0)
	model := newModel(t, p, Config{Leverage: 2})
	sec := newEquity("AAPL", 50)

	result, err := model.HasSufficientBuyingPowerForOrder(p, sec, &domain.Order{ID: "x", Quantity: 0})
	require.NoError(t, err)
	assert.True(t, result.IsSufficient)
}

func TestHasSufficientBuyingPowerMissingTicket(t *testing.T) {
	p := newTestPortfolio(100000)
	model := newModel(t, p, Config{Leverage: 2})
	sec := newEquity("AAPL", 50)

	order := &domain.Order{ID: "untracked", Symbol: sec.Symbol, Quantity: 10}
	result, err := model.HasSufficientBuyingPowerForOrder(p, sec, order)
	assert.ErrorIs(t, err, domain.ErrMissingOrderTicket)
	assert.False(t, result.IsSufficient)
}

func TestRiskReducingOrdersAlwaysAdmitted(t *testing.T) {
	// Leverage 1 and a fully-deployed portfolio: free margin is exactly zero
	p := newTestPortfolio(5000)
	model := newModel(t, p, Config{Leverage: 1})
	sec := newEquity("AAPL", 50)
	p.RegisterSecurity(sec, model)
	require.NoError(t, p.ProcessFill(&domain.Fill{
		OrderID: "o1", Symbol: sec.Symbol, Quantity: 100, Price: 50,
		TimeUTC: time.Now().UTC(),
	}))
	require.InDelta(t, 0, p.MarginRemaining(), 1e-9)

	sell := submitOrder(t, p, sec, -30)
	result, err := model.HasSufficientBuyingPowerForOrder(p, sec, sell)
	require.NoError(t, err)
	assert.True(t, result.IsSufficient, "de-risking must never be blocked by margin state")

	// Increasing the position with zero free margin is rejected
	buy := submitOrder(t, p, sec, 10)
	result, err = model.HasSufficientBuyingPowerForOrder(p, sec, buy)
	require.NoError(t, err)
	assert.False(t, result.IsSufficient)
}

func TestHasSufficientBuyingPowerNoMarketData(t *testing.T) {
	p := newTestPortfolio(100000)
	model := newModel(t, p, Config{Leverage: 2})
	sec := newEquity("AAPL", 0)
	order := submitOrder(t, p, sec, 10)

	result, err := model.HasSufficientBuyingPowerForOrder(p, sec, order)
	require.NoError(t, err)
	assert.False(t, result.IsSufficient)
	assert.Contains(t, result.Reason, "no market data")
}

func TestHasSufficientBuyingPowerProRatesUnfilled(t *testing.T) {
	p := newTestPortfolio(3000)
	model := newModel(t, p, Config{Leverage: 1})
	sec := newEquity("AAPL", 50)

	// The full order needs 5000; only 3000 is free
	order := submitOrder(t, p, sec, 100)
	result, err := model.HasSufficientBuyingPowerForOrder(p, sec, order)
	require.NoError(t, err)
	require.False(t, result.IsSufficient)

	// Half filled: only the remaining 2500 still needs margin
	ticket, ok := p.GetOrderTicket(order.ID)
	require.True(t, ok)
	ticket.QuantityFilled = 50
	ticket.Status = domain.OrderStatusPartiallyFilled

	result, err = model.HasSufficientBuyingPowerForOrder(p, sec, order)
	require.NoError(t, err)
	assert.True(t, result.IsSufficient)
}

func TestOptionExercise(t *testing.T) {
	p := newTestPortfolio(5000)
	model := newModel(t, p, Config{Leverage: 1})

	underlying := newEquity("AAPL", 50)
	p.RegisterSecurity(underlying, nil)

	optionProps := domain.DefaultSymbolProperties("USD")
	optionProps.ContractMultiplier = 100
	option := domain.NewSecurity(
		domain.NewSymbol("AAPL240621C40", domain.SecurityTypeOption, domain.MarketUSA),
		optionProps,
	)
	option.Underlying = underlying
	option.StrikePrice = 40

	order := &domain.Order{
		ID:       domain.NewOrderID(),
		Symbol:   option.Symbol,
		Type:     domain.OrderTypeOptionExercise,
		Quantity: 1,
	}
	p.RegisterSecurity(option, nil)
	require.NoError(t, p.RegisterOrderTicket(option.Symbol.Value, &domain.OrderTicket{
		OrderID: order.ID, Quantity: 1, Status: domain.OrderStatusSubmitted,
	}))

	// Physical delivery of 100 shares at the $40 strike needs $4000
	result, err := model.HasSufficientBuyingPowerForOrder(p, option, order)
	require.NoError(t, err)
	assert.True(t, result.IsSufficient)

	// Cash-settled contracts never touch buying power
	option.Underlying = nil
	result, err = model.HasSufficientBuyingPowerForOrder(p, option, order)
	require.NoError(t, err)
	assert.True(t, result.IsSufficient)
}

func TestOptionExerciseUsesUnderlyingModel(t *testing.T) {
	p := newTestPortfolio(3000)
	registry := NewModelRegistry()
	model := newModel(t, p, Config{Leverage: 2, Models: registry})

	underlying := newEquity("AAPL", 50)
	p.RegisterSecurity(underlying, nil)
	registry.Register(underlying.Symbol.Value, newModel(t, p, Config{Leverage: 1}))

	optionProps := domain.DefaultSymbolProperties("USD")
	optionProps.ContractMultiplier = 100
	option := domain.NewSecurity(
		domain.NewSymbol("AAPL240621C40", domain.SecurityTypeOption, domain.MarketUSA),
		optionProps,
	)
	option.Underlying = underlying
	option.StrikePrice = 40

	order := &domain.Order{
		ID:       domain.NewOrderID(),
		Symbol:   option.Symbol,
		Type:     domain.OrderTypeOptionExercise,
		Quantity: 1,
	}
	p.RegisterSecurity(option, nil)
	require.NoError(t, p.RegisterOrderTicket(option.Symbol.Value, &domain.OrderTicket{
		OrderID: order.ID, Quantity: 1, Status: domain.OrderStatusSubmitted,
	}))

	// The delivery of 100 shares at the $40 strike is checked against the
	// underlying's own 1x model: $4000 required against $3000 free. The
	// option's 2x model would have admitted it.
	result, err := model.HasSufficientBuyingPowerForOrder(p, option, order)
	require.NoError(t, err)
	assert.False(t, result.IsSufficient)
}

func TestGetMaximumOrderQuantitySimpleTarget(t *testing.T) {
	p := newTestPortfolio(100000)
	model := newModel(t, p, Config{Leverage: 2})
	sec := newEquity("AAPL", 10)
	p.RegisterSecurity(sec, nil)

	result, err := model.GetMaximumOrderQuantityForTargetValue(p, sec, 0.5)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.InDelta(t, 5000, result.Quantity, 1e-9)
}

func TestGetMaximumOrderQuantityAccountsForFees(t *testing.T) {
	p := newTestPortfolio(100000)
	model := newModel(t, p, Config{
		Leverage: 2,
		FeeModel: domain.FlatFeeModel{Fee: domain.NewMoney(10, "USD")},
	})
	sec := newEquity("AAPL", 10)
	p.RegisterSecurity(sec, nil)

	// The $10 fee costs exactly one $10 share off the naive answer
	result, err := model.GetMaximumOrderQuantityForTargetValue(p, sec, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 4999, result.Quantity, 1e-9)
}

func TestGetMaximumOrderQuantityRespectsReserve(t *testing.T) {
	p := newTestPortfolio(100000)
	model := newModel(t, p, Config{Leverage: 2, RequiredFreeBuyingPowerPercent: 0.1})
	sec := newEquity("AAPL", 10)
	p.RegisterSecurity(sec, nil)

	// Target applies to 90% of portfolio value
	result, err := model.GetMaximumOrderQuantityForTargetValue(p, sec, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 4500, result.Quantity, 1e-9)
}

func TestGetMaximumOrderQuantitySellsDownToTarget(t *testing.T) {
	p := newTestPortfolio(100000)
	model := newModel(t, p, Config{Leverage: 2})
	sec := newEquity("AAPL", 10)
	p.RegisterSecurity(sec, nil)
	require.NoError(t, p.ProcessFill(&domain.Fill{
		OrderID: "o1", Symbol: sec.Symbol, Quantity: 1000, Price: 10,
		TimeUTC: time.Now().UTC(),
	}))

	result, err := model.GetMaximumOrderQuantityForTargetValue(p, sec, 0)
	require.NoError(t, err)
	assert.InDelta(t, -1000, result.Quantity, 1e-9)
}

func TestGetMaximumOrderQuantitySubLotTarget(t *testing.T) {
	p := newTestPortfolio(100000)
	model := newModel(t, p, Config{Leverage: 2})
	// One share costs more than the whole target allocation
	sec := newEquity("BRKA", 300000)
	p.RegisterSecurity(sec, nil)

	result, err := model.GetMaximumOrderQuantityForTargetValue(p, sec, 0.5)
	require.NoError(t, err, "a sub-lot target is a soft outcome, not a failure")
	assert.False(t, result.IsError)
	assert.Equal(t, 0.0, result.Quantity)
	assert.NotEmpty(t, result.Reason)
}

func TestGetMaximumOrderQuantityNoMarketData(t *testing.T) {
	p := newTestPortfolio(100000)
	model := newModel(t, p, Config{Leverage: 2})
	sec := newEquity("AAPL", 0)
	p.RegisterSecurity(sec, nil)

	result, err := model.GetMaximumOrderQuantityForTargetValue(p, sec, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Quantity)
	assert.NotEmpty(t, result.Reason)
}

func TestGetMaximumOrderQuantityFeeModelFailure(t *testing.T) {
	p := newTestPortfolio(100000)
	model := newModel(t, p, Config{Leverage: 2, FeeModel: failingFeeModel{}})
	sec := newEquity("AAPL", 10)
	p.RegisterSecurity(sec, nil)

	result, err := model.GetMaximumOrderQuantityForTargetValue(p, sec, 0.5)
	assert.Error(t, err)
	assert.True(t, result.IsError)
}

func TestGetBuyingPowerOffsetCredit(t *testing.T) {
	p := newTestPortfolio(10000)
	model := newModel(t, p, Config{Leverage: 2})
	sec := newEquity("AAPL", 50)
	p.RegisterSecurity(sec, model)
	require.NoError(t, p.ProcessFill(&domain.Fill{
		OrderID: "o1", Symbol: sec.Symbol, Quantity: 100, Price: 50,
		TimeUTC: time.Now().UTC(),
	}))

	// TPV 10000, reserved margin 5000*0.5 = 2500, margin remaining 7500
	buying := model.GetBuyingPower(p, sec, domain.OrderDirectionBuy)
	assert.InDelta(t, 7500, buying.Value, 1e-9)

	// Selling against the long releases the reserved margin and can redeploy
	// it on the short side
	selling := model.GetBuyingPower(p, sec, domain.OrderDirectionSell)
	assert.InDelta(t, 7500+2*2500, selling.Value, 1e-9)
}

func TestGetBuyingPowerReserveNeverIncreasesHeadroom(t *testing.T) {
	p := newTestPortfolio(10000)
	sec := newEquity("AAPL", 50)
	p.RegisterSecurity(sec, nil)

	plain := newModel(t, p, Config{Leverage: 2})
	reserved := newModel(t, p, Config{Leverage: 2, RequiredFreeBuyingPowerPercent: 0.25})

	free := plain.GetBuyingPower(p, sec, domain.OrderDirectionBuy).Value
	held := reserved.GetBuyingPower(p, sec, domain.OrderDirectionBuy).Value
	assert.Less(t, held, free)
	assert.InDelta(t, free-10000*0.25, held, 1e-9)
}

func TestReservedBuyingPowerForPosition(t *testing.T) {
	p := newTestPortfolio(10000)
	model := newModel(t, p, Config{Leverage: 2})
	sec := newEquity("AAPL", 50)
	p.RegisterSecurity(sec, model)
	require.NoError(t, p.ProcessFill(&domain.Fill{
		OrderID: "o1", Symbol: sec.Symbol, Quantity: 100, Price: 50,
		TimeUTC: time.Now().UTC(),
	}))

	set, ok := p.Holdings(sec.Symbol.Value)
	require.True(t, ok)
	assert.InDelta(t, 2500, model.ReservedBuyingPowerForPosition(sec, set).Value, 1e-9)
	assert.Equal(t, 0.0, model.ReservedBuyingPowerForPosition(sec, nil).Value)
}

func TestSetLeverageReconfiguresRequirements(t *testing.T) {
	p := newTestPortfolio(0)
	model := newModel(t, p, Config{Leverage: 2})

	require.NoError(t, model.SetLeverage(4))
	assert.InDelta(t, 0.25, model.InitialMarginRequirement(), 1e-9)
	assert.InDelta(t, 0.25, model.MaintenanceMarginRequirement(), 1e-9)

	assert.ErrorIs(t, model.SetLeverage(0.5), domain.ErrInvalidLeverage)
}
