package holdings

import (
	"github.com/aprovatas/margind/internal/domain"
	"github.com/rs/zerolog"
)

// Set groups the exposure buckets tracked for one security. The Net bucket
// always exists; Long and Short sub-holdings are created lazily by venues
// that margin the two sides independently.
type Set struct {
	Net   *Holding
	Long  *Holding
	Short *Holding
}

// NewSet creates a holding set with an empty Net bucket
func NewSet(security *domain.Security, log zerolog.Logger) *Set {
	return &Set{Net: New(security, TypeNet, log)}
}

// Security returns the security the set tracks
func (s *Set) Security() *domain.Security {
	return s.Net.Security()
}

// Quantity returns the net signed position across all buckets
func (s *Set) Quantity() float64 {
	qty := s.Net.Quantity()
	if s.Long != nil {
		qty += s.Long.Quantity()
	}
	if s.Short != nil {
		qty += s.Short.Quantity()
	}
	return qty
}

// AbsoluteHoldingsCost sums the unsigned holdings cost across the Net, Long
// and Short buckets, in quote currency
func (s *Set) AbsoluteHoldingsCost() float64 {
	cost := s.Net.AbsoluteHoldingsCost()
	if s.Long != nil {
		cost += s.Long.AbsoluteHoldingsCost()
	}
	if s.Short != nil {
		cost += s.Short.AbsoluteHoldingsCost()
	}
	return cost
}

// HoldingsValue sums the mark-to-market value across buckets in quote currency
func (s *Set) HoldingsValue() float64 {
	value := s.Net.HoldingsValue()
	if s.Long != nil {
		value += s.Long.HoldingsValue()
	}
	if s.Short != nil {
		value += s.Short.HoldingsValue()
	}
	return value
}

// UnrealizedProfit sums mark-to-market P&L across buckets in quote currency
func (s *Set) UnrealizedProfit() float64 {
	pnl := s.Net.UnrealizedProfit()
	if s.Long != nil {
		pnl += s.Long.UnrealizedProfit()
	}
	if s.Short != nil {
		pnl += s.Short.UnrealizedProfit()
	}
	return pnl
}

// Invested reports whether any bucket holds a position
func (s *Set) Invested() bool {
	return s.Quantity() != 0
}

// TradingDayChanged rolls the T0 bucket on every holding in the set
func (s *Set) TradingDayChanged() {
	s.Net.TradingDayChanged()
	if s.Long != nil {
		s.Long.TradingDayChanged()
	}
	if s.Short != nil {
		s.Short.TradingDayChanged()
	}
}
