package holdings

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprovatas/margind/internal/domain"
)

func newEquityHolding(t *testing.T) *Holding {
	t.Helper()
	symbol := domain.NewSymbol("AAPL", domain.SecurityTypeEquity, domain.MarketUSA)
	sec := domain.NewSecurity(symbol, domain.DefaultSymbolProperties("USD"))
	return New(sec, TypeNet, zerolog.Nop())
}

func newCryptoHolding(t *testing.T) *Holding {
	t.Helper()
	symbol := domain.NewSymbol("BTCUSD", domain.SecurityTypeCrypto, domain.MarketGDAX)
	sec := domain.NewSecurity(symbol, domain.DefaultSymbolProperties("USD"))
	return New(sec, TypeNet, zerolog.Nop())
}

func fill(orderID string, quantity, price float64, fee domain.Money) *domain.Fill {
	return &domain.Fill{
		OrderID:  orderID,
		Quantity: quantity,
		Price:    price,
		Fee:      fee,
		TimeUTC:  time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC),
	}
}

func TestOpenPositionBuildsAverage(t *testing.T) {
	h := newEquityHolding(t)

	h.OpenPosition(fill("o1", 100, 10, domain.NewMoney(1, "USD")), 1)
	h.OpenPosition(fill("o2", 100, 20, domain.NewMoney(1, "USD")), 1)

	assert.Equal(t, 200.0, h.Quantity())
	assert.Equal(t, 200.0, h.UnsettledQuantity())
	assert.Equal(t, 0.0, h.SettledQuantity())
	assert.InDelta(t, 15.0, h.AveragePrice(), 1e-9)
	assert.Equal(t, 2.0, h.TotalFees())
}

func TestQuantitySplitInvariant(t *testing.T) {
	h := newEquityHolding(t)

	h.OpenPosition(fill("o1", 100, 10, domain.Money{}), 0)
	h.TradingDayChanged()
	h.OpenPosition(fill("o2", 50, 12, domain.Money{}), 0)

	assert.Equal(t, h.Quantity(), h.UnsettledQuantity()+h.SettledQuantity())
	assert.Equal(t, 150.0, h.Quantity())
	assert.Equal(t, 50.0, h.UnsettledQuantity())
	assert.Equal(t, 100.0, h.SettledQuantity())
}

func TestTradingDayChangedGraduatesT0(t *testing.T) {
	h := newEquityHolding(t)

	h.OpenPosition(fill("o1", 100, 10, domain.Money{}), 0)
	require.Equal(t, 100.0, h.UnsettledQuantity())

	h.TradingDayChanged()

	assert.Equal(t, 0.0, h.UnsettledQuantity())
	assert.Equal(t, 100.0, h.Quantity(), "the day roll must not change total quantity")
	assert.Equal(t, 100.0, h.SettledQuantity())
}

func TestClosePositionConsumesSettledBucketFirst(t *testing.T) {
	h := newEquityHolding(t)

	// 100 settled shares from yesterday, 50 unsettled from today
	h.OpenPosition(fill("o1", 100, 10, domain.Money{}), 0)
	h.TradingDayChanged()
	h.OpenPosition(fill("o2", 50, 10, domain.Money{}), 0)

	// Selling 80 consumes only the settled bucket
	h.ClosePosition(fill("o3", -80, 11, domain.Money{}), 0)

	assert.Equal(t, 70.0, h.Quantity())
	assert.Equal(t, 50.0, h.UnsettledQuantity(), "T0 is untouched while T1 covers the close")
	assert.Equal(t, 20.0, h.SettledQuantity())
}

func TestClosePositionOverflowReducesT0(t *testing.T) {
	h := newEquityHolding(t)

	h.OpenPosition(fill("o1", 100, 10, domain.Money{}), 0)
	h.TradingDayChanged()
	h.OpenPosition(fill("o2", 50, 10, domain.Money{}), 0)

	// Selling 120: 100 from T1, the remaining 20 from T0
	h.ClosePosition(fill("o3", -120, 11, domain.Money{}), 0)

	assert.Equal(t, 30.0, h.Quantity())
	assert.Equal(t, 30.0, h.UnsettledQuantity())
	assert.Equal(t, 0.0, h.SettledQuantity(), "T1 magnitude never goes negative")
}

func TestClosePositionRealizesProfit(t *testing.T) {
	h := newEquityHolding(t)

	h.OpenPosition(fill("o1", 100, 10, domain.Money{}), 0)
	h.ClosePosition(fill("o2", -40, 12, domain.Money{}), 0)

	assert.InDelta(t, 80.0, h.TotalRealizedProfit(), 1e-9)
	assert.InDelta(t, 480.0, h.TotalSaleVolume(), 1e-9)
	assert.Equal(t, 60.0, h.Quantity())
}

func TestCryptoFeeNettingOnOpen(t *testing.T) {
	h := newCryptoHolding(t)

	// Buying 2 BTC with a 0.01 BTC fee delivers 1.99 BTC
	h.OpenPosition(fill("o1", 2, 50000, domain.NewMoney(0.01, "BTC")), 500)

	assert.InDelta(t, 1.99, h.Quantity(), 1e-9)
	assert.Equal(t, 0.0, h.TotalFees(), "base-currency fees never accrue to totalFees")
}

func TestCryptoFeeInQuoteCurrencyAccrues(t *testing.T) {
	h := newCryptoHolding(t)

	h.OpenPosition(fill("o1", 2, 50000, domain.NewMoney(25, "USD")), 25)

	assert.Equal(t, 2.0, h.Quantity())
	assert.Equal(t, 25.0, h.TotalFees())
}

func TestCryptoFeeNettingOnCloseT0Portion(t *testing.T) {
	h := newCryptoHolding(t)

	// 1 BTC settled, 1 BTC bought today
	h.OpenPosition(fill("o1", 1, 50000, domain.Money{}), 0)
	h.TradingDayChanged()
	h.OpenPosition(fill("o2", 1, 50000, domain.Money{}), 0)

	// Selling 1.5: 1 from T1, 0.5 from T0 with the fee netted out of the
	// T0 reduction
	h.ClosePosition(fill("o3", -1.5, 52000, domain.NewMoney(0.01, "BTC")), 520)

	assert.InDelta(t, 0.49, h.Quantity(), 1e-9)
	assert.InDelta(t, 0.49, h.UnsettledQuantity(), 1e-9)
	assert.Equal(t, 0.0, h.TotalFees())
}

func TestCryptoFeeNettingOnFullySettledClose(t *testing.T) {
	h := newCryptoHolding(t)

	h.OpenPosition(fill("o1", 1, 50000, domain.Money{}), 0)
	h.TradingDayChanged()

	// Selling 0.5 entirely out of T1: the fee still leaves the position
	h.ClosePosition(fill("o2", -0.5, 52000, domain.NewMoney(0.01, "BTC")), 520)

	assert.InDelta(t, 0.49, h.Quantity(), 1e-9)
	assert.Equal(t, 0.0, h.UnsettledQuantity())
	assert.InDelta(t, 0.49, h.SettledQuantity(), 1e-9)
	assert.Equal(t, 0.0, h.TotalFees())
}

func TestOpenQuantityReservesClosingTickets(t *testing.T) {
	h := newEquityHolding(t)
	h.OpenPosition(fill("o1", 100, 10, domain.Money{}), 0)

	h.RegisterOrderTicket(&domain.OrderTicket{
		OrderID:  "close-1",
		Quantity: -30,
		Status:   domain.OrderStatusSubmitted,
	})
	assert.Equal(t, 70.0, h.OpenQuantity())

	// A buy ticket does not reserve closing quantity
	h.RegisterOrderTicket(&domain.OrderTicket{
		OrderID:  "open-2",
		Quantity: 20,
		Status:   domain.OrderStatusSubmitted,
	})
	assert.Equal(t, 70.0, h.OpenQuantity())

	// Partially filled closing ticket only reserves the unfilled remainder
	h.RegisterOrderTicket(&domain.OrderTicket{
		OrderID:        "close-3",
		Quantity:       -40,
		QuantityFilled: -10,
		Status:         domain.OrderStatusPartiallyFilled,
	})
	assert.Equal(t, 40.0, h.OpenQuantity())

	// Canceled tickets stop reserving
	h.RemoveOrderTicket("close-1")
	assert.Equal(t, 70.0, h.OpenQuantity())
}

func TestApplySplitPreservesHoldingsCost(t *testing.T) {
	h := newEquityHolding(t)
	h.OpenPosition(fill("o1", 100, 10, domain.Money{}), 0)
	costBefore := h.HoldingsCost()

	h.ApplySplit(2)

	assert.Equal(t, 200.0, h.Quantity())
	assert.InDelta(t, 5.0, h.AveragePrice(), 1e-9)
	assert.InDelta(t, costBefore, h.HoldingsCost(), 1e-9)
}

func TestSetSumsBuckets(t *testing.T) {
	symbol := domain.NewSymbol("AAPL", domain.SecurityTypeEquity, domain.MarketUSA)
	sec := domain.NewSecurity(symbol, domain.DefaultSymbolProperties("USD"))
	set := NewSet(sec, zerolog.Nop())

	set.Net.OpenPosition(fill("o1", 100, 10, domain.Money{}), 0)
	set.Long = New(sec, TypeLong, zerolog.Nop())
	set.Long.OpenPosition(fill("o2", 20, 10, domain.Money{}), 0)

	assert.Equal(t, 120.0, set.Quantity())
	assert.InDelta(t, 1200.0, set.AbsoluteHoldingsCost(), 1e-9)
	assert.True(t, set.Invested())

	set.TradingDayChanged()
	assert.Equal(t, 0.0, set.Net.UnsettledQuantity())
	assert.Equal(t, 0.0, set.Long.UnsettledQuantity())
}
