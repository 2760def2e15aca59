// Package portfolio implements the portfolio aggregator: it sums the cash
// and position ledgers into total portfolio value and total margin used,
// with invalidation-driven caching, and owns the settlement-timing rules.
package portfolio

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/aprovatas/margind/internal/domain"
	"github.com/aprovatas/margind/internal/events"
	"github.com/aprovatas/margind/internal/modules/cashbook"
	"github.com/aprovatas/margind/internal/modules/holdings"
	"github.com/rs/zerolog"
)

// MaintenanceMarginProvider exposes the maintenance requirement the margin
// engine configured for a security. Defined here so the aggregator never
// depends on the buying-power package.
type MaintenanceMarginProvider interface {
	MaintenanceMarginRequirement() float64
}

// Journal records processed fills for the audit trail. Optional: a nil
// journal disables recording.
type Journal interface {
	Record(fill *domain.Fill, feeInAccountCurrency float64, closing bool) error
}

// securityEntry ties together everything the aggregator tracks per security
type securityEntry struct {
	security *domain.Security
	holdings *holdings.Set
	margin   MaintenanceMarginProvider
}

// Manager aggregates the currency and position ledgers of one account.
//
// Responsibilities:
//   - Route fills into the position ledger and the cash books
//   - Maintain the dirty-flag cached total portfolio value
//   - Compute total margin used and margin remaining
//   - Mature unsettled sale proceeds into settled cash
//   - Apply splits, dividends and the trading-day roll
//
// Fills can arrive on brokerage callback goroutines while the main loop
// reads valuations, so the dirty flag is atomic and the recompute critical
// section is serialized.
type Manager struct {
	log    zerolog.Logger
	events *events.Manager

	accountCurrency string

	mu      sync.RWMutex
	entries map[string]*securityEntry
	tickets map[string]*domain.OrderTicket

	settled   *cashbook.Book
	unsettled *cashbook.Book

	unsettledMu      sync.Mutex
	unsettledAmounts []UnsettledCashAmount

	dirty   atomic.Bool
	valueMu sync.Mutex
	value   float64

	journal Journal
}

// Config holds the manager's constructor dependencies
type Config struct {
	AccountCurrency string
	Events          *events.Manager
	Journal         Journal
	Log             zerolog.Logger
}

// NewManager creates a portfolio manager with empty ledgers
func NewManager(cfg Config) *Manager {
	log := cfg.Log.With().Str("service", "portfolio").Logger()
	m := &Manager{
		log:             log,
		events:          cfg.Events,
		accountCurrency: cfg.AccountCurrency,
		entries:         make(map[string]*securityEntry),
		tickets:         make(map[string]*domain.OrderTicket),
		settled:         cashbook.NewBook(cfg.AccountCurrency, log),
		unsettled:       cashbook.NewBook(cfg.AccountCurrency, log),
		journal:         cfg.Journal,
	}
	m.dirty.Store(true)

	// Any cash mutation invalidates the cached valuation
	m.settled.Subscribe(func() { m.Invalidate("cash changed") })
	m.unsettled.Subscribe(func() { m.Invalidate("unsettled cash changed") })
	return m
}

// AccountCurrency returns the account reporting currency
func (m *Manager) AccountCurrency() string {
	return m.accountCurrency
}

// SettledCashBook returns the settled cash book. It implements
// domain.CurrencyConverter for the margin engine.
func (m *Manager) SettledCashBook() *cashbook.Book {
	return m.settled
}

// UnsettledCashBook returns the unsettled cash book
func (m *Manager) UnsettledCashBook() *cashbook.Book {
	return m.unsettled
}

// RegisterSecurity adds a security to the portfolio with an empty holding.
// The margin provider may be nil for securities that carry no margin (it
// can be attached later with SetMarginProvider).
func (m *Manager) RegisterSecurity(security *domain.Security, margin MaintenanceMarginProvider) *holdings.Set {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[security.Symbol.Value]; ok {
		return entry.holdings
	}
	entry := &securityEntry{
		security: security,
		holdings: holdings.NewSet(security, m.log),
		margin:   margin,
	}
	m.entries[security.Symbol.Value] = entry
	return entry.holdings
}

// SetMarginProvider attaches or replaces the margin provider for a security
func (m *Manager) SetMarginProvider(symbolValue string, margin MaintenanceMarginProvider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[symbolValue]
	if !ok {
		return fmt.Errorf("failed to set margin provider: security %s not registered", symbolValue)
	}
	entry.margin = margin
	return nil
}

// Holdings returns the holding set for a symbol value
func (m *Manager) Holdings(symbolValue string) (*holdings.Set, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[symbolValue]
	if !ok {
		return nil, false
	}
	return entry.holdings, true
}

// Security returns the registered security for a symbol value
func (m *Manager) Security(symbolValue string) (*domain.Security, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[symbolValue]
	if !ok {
		return nil, false
	}
	return entry.security, true
}

// RegisterOrderTicket tracks an order ticket portfolio-wide and against the
// symbol's holding, so OpenQuantity can reserve closing quantity
func (m *Manager) RegisterOrderTicket(symbolValue string, ticket *domain.OrderTicket) error {
	m.mu.Lock()
	entry, ok := m.entries[symbolValue]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("failed to register order ticket: security %s not registered", symbolValue)
	}
	m.tickets[ticket.OrderID] = ticket
	m.mu.Unlock()

	entry.holdings.Net.RegisterOrderTicket(ticket)
	return nil
}

// RemoveOrderTicket stops tracking a closed order ticket
func (m *Manager) RemoveOrderTicket(symbolValue, orderID string) {
	m.mu.Lock()
	delete(m.tickets, orderID)
	entry, ok := m.entries[symbolValue]
	m.mu.Unlock()
	if ok {
		entry.holdings.Net.RemoveOrderTicket(orderID)
	}
}

// GetOrderTicket implements domain.TicketSource
func (m *Manager) GetOrderTicket(orderID string) (*domain.OrderTicket, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ticket, ok := m.tickets[orderID]
	return ticket, ok
}

// Invalidate marks the cached portfolio value stale. Called on every fill,
// cash mutation, split and dividend; the next valuation read recomputes.
func (m *Manager) Invalidate(reason string) {
	m.dirty.Store(true)
	if m.events != nil {
		m.events.Emit("portfolio", &events.PortfolioChangedData{Reason: reason})
	}
}

// ProcessFill routes a fill into the position ledger and the cash books,
// records it to the journal, and invalidates the cached valuation.
//
// A fill that reverses through zero is split into a full close plus an open
// of the remainder, with the fee charged on the closing part.
func (m *Manager) ProcessFill(fill *domain.Fill) error {
	m.mu.RLock()
	entry, ok := m.entries[fill.Symbol.Value]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("failed to process fill: security %s not registered", fill.Symbol.Value)
	}

	feeInAccountCurrency := 0.0
	if fill.Fee.Amount != 0 {
		converted, err := m.settled.ConvertToAccountCurrency(fill.Fee.Amount, fill.Fee.Currency)
		if err != nil {
			return fmt.Errorf("failed to convert order fee: %w", err)
		}
		feeInAccountCurrency = converted
	}

	holding := entry.holdings.Net
	position := holding.Quantity()
	closing := position != 0 && oppositeSigns(position, fill.Quantity)

	if closing && fill.AbsQuantity() > math.Abs(position) {
		// Reversal: close the whole position, then open the remainder
		closeFill := *fill
		closeFill.Quantity = -position
		openFill := *fill
		openFill.Quantity = fill.Quantity + position
		openFill.Fee = domain.NewMoney(0, fill.Fee.Currency)

		if err := m.applyFill(entry, &closeFill, feeInAccountCurrency, true); err != nil {
			return err
		}
		return m.applyFill(entry, &openFill, 0, false)
	}

	return m.applyFill(entry, fill, feeInAccountCurrency, closing)
}

// applyFill performs the ledger and cash mutations for a non-reversing fill
func (m *Manager) applyFill(entry *securityEntry, fill *domain.Fill, feeInAccountCurrency float64, closing bool) error {
	holding := entry.holdings.Net
	sec := entry.security
	averageBefore := holding.AveragePrice()

	if closing {
		holding.ClosePosition(fill, feeInAccountCurrency)
	} else {
		holding.OpenPosition(fill, feeInAccountCurrency)
	}

	m.applyCashEffects(sec, fill, closing, averageBefore)

	// Fees always settle out of the fee currency's cash. Base-netted crypto
	// fees change only the holding's quantity bookkeeping, never this debit.
	if fill.Fee.Amount != 0 {
		m.settled.GetOrCreate(fill.Fee.Currency).AddAmount(-fill.Fee.Amount)
	}

	if m.journal != nil {
		if err := m.journal.Record(fill, feeInAccountCurrency, closing); err != nil {
			m.log.Error().Err(err).Str("order_id", fill.OrderID).Msg("Failed to journal fill")
		}
	}

	m.Invalidate("fill processed")
	if m.events != nil {
		m.events.Emit("portfolio", &events.FillProcessedData{
			Symbol:   fill.Symbol.Value,
			OrderID:  fill.OrderID,
			Quantity: fill.Quantity,
			Price:    fill.Price,
			Fee:      feeInAccountCurrency,
			Closing:  closing,
		})
	}

	m.log.Info().
		Str("symbol", fill.Symbol.Value).
		Float64("quantity", fill.Quantity).
		Float64("price", fill.Price).
		Bool("closing", closing).
		Msg("Fill processed")

	return nil
}

// applyCashEffects moves the notional of a fill through the cash books.
// averageBefore is the holding's average price before this fill was applied.
func (m *Manager) applyCashEffects(sec *domain.Security, fill *domain.Fill, closing bool, averageBefore float64) {
	switch {
	case sec.Symbol.Type.IsMarginSettled():
		// Futures/CFDs are margin-settled: no notional changes hands on
		// entry. Closing a position settles its realized profit into the
		// quote currency, otherwise the gain would evaporate with the
		// unrealized P&L it was carried as.
		if closing {
			realized := (fill.Price - averageBefore) * -fill.Quantity * sec.Props.ContractMultiplier
			if realized != 0 {
				m.settled.GetOrCreate(sec.QuoteCurrency()).AddAmount(realized)
			}
		}

	case domain.IsCurrencyPairType(sec.Symbol.Type):
		// Spot FX/crypto trades exchange base against quote currency
		base := sec.BaseCurrency()
		quote := sec.QuoteCurrency()
		if base != "" {
			m.settled.GetOrCreate(base).AddAmount(fill.Quantity)
		}
		m.settled.GetOrCreate(quote).AddAmount(-fill.Quantity * fill.Price)

	default:
		// Notionally-settled instruments (equities, options)
		notional := fill.Quantity * fill.Price * sec.Props.ContractMultiplier
		quote := sec.QuoteCurrency()
		if notional < 0 && sec.Props.SettlementDays > 0 {
			// Sale proceeds on a T+N market stay unsettled until delivery
			m.AddUnsettledCash(UnsettledCashAmount{
				Currency:          quote,
				Amount:            -notional,
				SettlementTimeUTC: fill.TimeUTC.AddDate(0, 0, sec.Props.SettlementDays),
			})
			return
		}
		m.settled.GetOrCreate(quote).AddAmount(-notional)
	}
}

// ApplyDividend credits a per-share distribution into settled cash
func (m *Manager) ApplyDividend(symbolValue string, perShare float64) error {
	m.mu.RLock()
	entry, ok := m.entries[symbolValue]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("failed to apply dividend: security %s not registered", symbolValue)
	}
	qty := entry.holdings.Quantity()
	if qty == 0 {
		return nil
	}
	m.settled.GetOrCreate(entry.security.QuoteCurrency()).AddAmount(qty * perShare)
	m.Invalidate("dividend applied")
	m.log.Info().
		Str("symbol", symbolValue).
		Float64("per_share", perShare).
		Float64("quantity", qty).
		Msg("Dividend applied")
	return nil
}

// ApplySplit adjusts a holding for a stock split and invalidates the cache
func (m *Manager) ApplySplit(symbolValue string, factor float64) error {
	m.mu.RLock()
	entry, ok := m.entries[symbolValue]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("failed to apply split: security %s not registered", symbolValue)
	}
	entry.holdings.Net.ApplySplit(factor)
	if entry.holdings.Long != nil {
		entry.holdings.Long.ApplySplit(factor)
	}
	if entry.holdings.Short != nil {
		entry.holdings.Short.ApplySplit(factor)
	}
	m.Invalidate("split applied")
	return nil
}

// SetCash replaces the settled balance for a currency. Used at account
// setup and when the brokerage reports an authoritative balance.
func (m *Manager) SetCash(currency string, amount, conversionRate float64) {
	cash := m.settled.GetOrCreate(currency)
	cash.MarkExplicit()
	cash.SetAmount(amount)
	if conversionRate > 0 {
		cash.SetConversionRate(conversionRate)
	}
	if m.events != nil {
		m.events.Emit("portfolio", &events.CashChangedData{Currency: currency, Amount: amount, Settled: true})
	}
}

// MarketPriceChanged propagates a price tick into any conversion rates bound
// to the security and invalidates the cached valuation
func (m *Manager) MarketPriceChanged(symbolValue string, price float64) {
	m.settled.UpdateRatesFor(symbolValue, price)
	m.unsettled.UpdateRatesFor(symbolValue, price)
	m.Invalidate("price updated")
}

// TradingDayChanged rolls every holding's T0 bucket at the day boundary
func (m *Manager) TradingDayChanged(day string) {
	m.mu.RLock()
	sets := make([]*holdings.Set, 0, len(m.entries))
	for _, entry := range m.entries {
		sets = append(sets, entry.holdings)
	}
	m.mu.RUnlock()

	for _, set := range sets {
		set.TradingDayChanged()
	}
	m.Invalidate("trading day rolled")
	if m.events != nil {
		m.events.Emit("portfolio", &events.TradingDayRolledData{Holdings: len(sets), Day: day})
	}
	m.log.Info().Str("day", day).Int("holdings", len(sets)).Msg("Trading day rolled")
}

func oppositeSigns(a, b float64) bool {
	return (a > 0 && b < 0) || (a < 0 && b > 0)
}
