package domain

import "sync"

// Security holds the live market-data view and static properties of one
// instrument. Price updates arrive from the market-data layer on their own
// goroutine, so access to the quote fields is serialized.
type Security struct {
	Symbol Symbol
	Props  SymbolProperties

	// Internal securities are created by the accounting core itself (for
	// example currency-conversion feeds) and are hidden from operator UIs.
	Internal bool

	// Underlying links an option contract to its deliverable instrument.
	// Nil for cash-settled contracts and for non-options.
	Underlying *Security

	// StrikePrice is the exercise price for option contracts.
	StrikePrice float64

	mu    sync.RWMutex
	price float64
	bid   float64
	ask   float64
}

// NewSecurity creates a security with the given symbol and properties
func NewSecurity(symbol Symbol, props SymbolProperties) *Security {
	if props.LotSize <= 0 {
		props.LotSize = 1
	}
	if props.ContractMultiplier <= 0 {
		props.ContractMultiplier = 1
	}
	return &Security{Symbol: symbol, Props: props}
}

// Price returns the last trade price, or the bid/ask midpoint when no trade
// has printed yet. Zero means no market data has arrived.
func (s *Security) Price() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.price > 0 {
		return s.price
	}
	if s.bid > 0 && s.ask > 0 {
		return (s.bid + s.ask) / 2
	}
	return 0
}

// SetMarketPrice records a trade print
func (s *Security) SetMarketPrice(price float64) {
	s.mu.Lock()
	s.price = price
	s.mu.Unlock()
}

// SetQuote records top-of-book bid and ask
func (s *Security) SetQuote(bid, ask float64) {
	s.mu.Lock()
	s.bid = bid
	s.ask = ask
	s.mu.Unlock()
}

// Bid returns the current best bid
func (s *Security) Bid() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bid
}

// Ask returns the current best ask
func (s *Security) Ask() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ask
}

// QuoteCurrency returns the currency the instrument is priced in
func (s *Security) QuoteCurrency() string {
	return s.Props.QuoteCurrency
}

// BaseCurrency returns the base side of a currency-pair instrument, or ""
// for instruments that are not currency pairs.
func (s *Security) BaseCurrency() string {
	if !IsCurrencyPairType(s.Symbol.Type) {
		return ""
	}
	base, _, ok := DecomposePair(s.Symbol.Value, s.Props.QuoteCurrency)
	if !ok {
		return ""
	}
	return base
}
