// Package holdings implements the position ledger: per-security quantity,
// average price, realized profit, fees, and the same-day/settled quantity
// split used by T+1 delivery markets.
package holdings

import (
	"math"
	"sync"

	"github.com/aprovatas/margind/internal/domain"
	"github.com/rs/zerolog"
)

// Type partitions a security's exposure. Net is the default single-bucket
// view; Long and Short sub-holdings exist for venues that margin the two
// sides independently.
type Type string

const (
	TypeNet   Type = "NET"
	TypeLong  Type = "LONG"
	TypeShort Type = "SHORT"
)

// Holding is the position ledger entry for one security. It is mutated
// exclusively through OpenPosition and ClosePosition on each fill; fills can
// arrive on a brokerage callback thread while the main loop reads, so all
// access is serialized with the instance lock.
type Holding struct {
	mu sync.Mutex

	security    *domain.Security
	holdingType Type

	averagePrice float64
	quantity     float64
	// quantityT0 is today's unsettled acquisitions. The settled bucket is
	// implicit: quantity - quantityT0. Reset once per trading-day roll.
	quantityT0 float64

	lastPrice           float64
	totalFees           float64
	totalRealizedProfit float64
	totalSaleVolume     float64

	// openTickets tracks still-open closing order tickets so concurrent
	// close orders cannot together oversell the position
	openTickets map[string]*domain.OrderTicket

	log zerolog.Logger
}

// New creates an empty holding for the security
func New(security *domain.Security, holdingType Type, log zerolog.Logger) *Holding {
	return &Holding{
		security:    security,
		holdingType: holdingType,
		openTickets: make(map[string]*domain.OrderTicket),
		log: log.With().
			Str("component", "holding").
			Str("symbol", security.Symbol.Value).
			Logger(),
	}
}

// Security returns the security this holding tracks
func (h *Holding) Security() *domain.Security {
	return h.security
}

// HoldingType returns the exposure bucket of this holding
func (h *Holding) HoldingType() Type {
	return h.holdingType
}

// Quantity returns the current signed position size
func (h *Holding) Quantity() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.quantity
}

// UnsettledQuantity returns today's same-day bucket (T0)
func (h *Holding) UnsettledQuantity() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.quantityT0
}

// SettledQuantity returns the previously-settled bucket (T1)
func (h *Holding) SettledQuantity() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.quantity - h.quantityT0
}

// AveragePrice returns the volume-weighted average entry price
func (h *Holding) AveragePrice() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.averagePrice
}

// LastPrice returns the price of the most recent fill or mark
func (h *Holding) LastPrice() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastPrice
}

// TotalFees returns accumulated fees in account currency
func (h *Holding) TotalFees() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalFees
}

// TotalRealizedProfit returns accumulated realized P&L in quote currency
func (h *Holding) TotalRealizedProfit() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalRealizedProfit
}

// TotalSaleVolume returns the notional of all closing fills
func (h *Holding) TotalSaleVolume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalSaleVolume
}

// IsLong reports a positive net position
func (h *Holding) IsLong() bool { return h.Quantity() > 0 }

// IsShort reports a negative net position
func (h *Holding) IsShort() bool { return h.Quantity() < 0 }

// Invested reports whether any position is open
func (h *Holding) Invested() bool { return h.Quantity() != 0 }

// HoldingsCost returns quantity * average price * contract multiplier in
// quote currency
func (h *Holding) HoldingsCost() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.quantity * h.averagePrice * h.security.Props.ContractMultiplier
}

// AbsoluteHoldingsCost returns the unsigned holdings cost
func (h *Holding) AbsoluteHoldingsCost() float64 {
	return math.Abs(h.HoldingsCost())
}

// HoldingsValue returns quantity * current price * contract multiplier in
// quote currency
func (h *Holding) HoldingsValue() float64 {
	h.mu.Lock()
	qty := h.quantity
	h.mu.Unlock()
	return qty * h.security.Price() * h.security.Props.ContractMultiplier
}

// UnrealizedProfit returns the mark-to-market P&L of the open position in
// quote currency
func (h *Holding) UnrealizedProfit() float64 {
	h.mu.Lock()
	qty := h.quantity
	avg := h.averagePrice
	h.mu.Unlock()
	price := h.security.Price()
	if qty == 0 || price == 0 {
		return 0
	}
	return (price - avg) * qty * h.security.Props.ContractMultiplier
}

// cryptoFeeNetting reports whether the fee for this fill is charged in the
// position's own base currency, in which case it is netted directly out of
// the filled quantity instead of accruing to totalFees.
func (h *Holding) cryptoFeeNetting(fill *domain.Fill) bool {
	return h.security.Symbol.Type == domain.SecurityTypeCrypto &&
		fill.Fee.Currency != "" &&
		fill.Fee.Currency == h.security.BaseCurrency()
}

// OpenPosition applies a position-increasing fill. The signed fill quantity
// grows both the total quantity and today's T0 bucket. Crypto venues that
// charge the fee in the pair's base currency have it netted out of the
// received quantity; all other fees accrue in account currency.
func (h *Holding) OpenPosition(fill *domain.Fill, feeInAccountCurrency float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delta := fill.Quantity
	if h.cryptoFeeNetting(fill) {
		// Buying BTCUSD with the fee taken in BTC delivers quantity minus
		// fee; selling parts with quantity plus fee. Either way the base
		// balance drops by the fee, so the signed delta shrinks.
		delta -= fill.Fee.Amount
	} else {
		h.totalFees += feeInAccountCurrency
	}

	newQuantity := h.quantity + delta
	if newQuantity != 0 {
		h.averagePrice = (h.averagePrice*h.quantity + fill.Price*delta) / newQuantity
	} else {
		h.averagePrice = 0
	}
	h.quantity = newQuantity
	h.quantityT0 += delta
	h.lastPrice = fill.Price

	h.log.Debug().
		Float64("fill_quantity", fill.Quantity).
		Float64("quantity", h.quantity).
		Float64("quantity_t0", h.quantityT0).
		Float64("average_price", h.averagePrice).
		Msg("Opened position")
}

// ClosePosition applies a position-reducing fill. The fill first consumes
// the settled (T1) bucket; only the remainder reduces today's T0 bucket, so
// a partial close can never drive the settled bucket's magnitude negative.
func (h *Holding) ClosePosition(fill *domain.Fill, feeInAccountCurrency float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	closed := fill.Quantity // opposite sign to the position
	t1 := h.quantity - h.quantityT0

	// Portion covered by the settled bucket
	fromT1 := closed
	if math.Abs(closed) > math.Abs(t1) {
		fromT1 = -t1
	}
	remainder := closed - fromT1

	if h.cryptoFeeNetting(fill) {
		// The base-currency fee leaves the position together with the closed
		// quantity. It comes out of today's bucket when the close reached
		// into it, otherwise out of the settled bucket.
		h.quantity -= fill.Fee.Amount
		if remainder != 0 {
			h.quantityT0 += remainder - fill.Fee.Amount
		}
	} else {
		h.quantityT0 += remainder
		h.totalFees += feeInAccountCurrency
	}

	multiplier := h.security.Props.ContractMultiplier
	h.totalRealizedProfit += (fill.Price - h.averagePrice) * -closed * multiplier
	h.totalSaleVolume += math.Abs(closed) * fill.Price * multiplier

	h.quantity += closed
	if h.quantity == 0 {
		h.averagePrice = 0
	}
	h.lastPrice = fill.Price

	h.log.Debug().
		Float64("fill_quantity", fill.Quantity).
		Float64("quantity", h.quantity).
		Float64("quantity_t0", h.quantityT0).
		Float64("realized_profit", h.totalRealizedProfit).
		Msg("Closed position")
}

// TradingDayChanged graduates today's T0 bucket to settled status. Total
// quantity is unchanged.
func (h *Holding) TradingDayChanged() {
	h.mu.Lock()
	h.quantityT0 = 0
	h.mu.Unlock()
}

// ApplySplit adjusts the position for a stock split. Factor is the number
// of new shares per old share (2 for a 2-for-1 split). Holdings cost is
// preserved exactly.
func (h *Holding) ApplySplit(factor float64) {
	if factor <= 0 {
		return
	}
	h.mu.Lock()
	h.quantity *= factor
	h.quantityT0 *= factor
	h.averagePrice /= factor
	h.lastPrice /= factor
	h.mu.Unlock()
}
