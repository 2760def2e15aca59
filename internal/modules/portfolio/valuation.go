package portfolio

import (
	"github.com/aprovatas/margind/internal/domain"
)

// TotalPortfolioValue returns the cached account-currency valuation,
// recomputing it only when the dirty flag is set.
//
// The valuation is: settled cash + unsettled cash + notional value of
// holdings whose class is not FX/Crypto/Future/CFD + unrealized profit of
// Future/CFD holdings. Spot FX and crypto positions already live in the
// cash books, and margin-settled classes carry no notional.
func (m *Manager) TotalPortfolioValue() float64 {
	if !m.dirty.Load() {
		m.valueMu.Lock()
		v := m.value
		m.valueMu.Unlock()
		return v
	}

	m.valueMu.Lock()
	defer m.valueMu.Unlock()
	// Another reader may have recomputed while we waited on the lock
	if !m.dirty.Load() {
		return m.value
	}

	total := m.settled.TotalValueInAccountCurrency() + m.unsettled.TotalValueInAccountCurrency()

	m.mu.RLock()
	entries := make([]*securityEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	m.mu.RUnlock()

	for _, entry := range entries {
		if !entry.holdings.Invested() {
			continue
		}
		total += m.holdingValueInAccountCurrency(entry)
	}

	m.value = total
	m.dirty.Store(false)

	m.log.Debug().Float64("total_portfolio_value", total).Msg("Recomputed portfolio value")
	return total
}

// holdingValueInAccountCurrency applies the per-class valuation rule for a
// single security and converts into account currency. An unresolved
// conversion rate degrades to a zero contribution rather than aborting.
func (m *Manager) holdingValueInAccountCurrency(entry *securityEntry) float64 {
	t := entry.security.Symbol.Type

	var quoteValue float64
	switch {
	case domain.IsCurrencyPairType(t) && !t.IsMarginSettled():
		// Spot pairs are represented in the cash books already
		return 0
	case t.IsMarginSettled():
		quoteValue = entry.holdings.UnrealizedProfit()
	default:
		quoteValue = entry.holdings.HoldingsValue()
	}

	converted, err := m.settled.ConvertToAccountCurrency(quoteValue, entry.security.QuoteCurrency())
	if err != nil {
		m.log.Warn().
			Err(err).
			Str("symbol", entry.security.Symbol.Value).
			Msg("Cannot convert holding value to account currency, contributing 0")
		return 0
	}
	return converted
}

// TotalMarginUsed sums the reserved maintenance margin across all
// securities with a margin provider, in account currency
func (m *Manager) TotalMarginUsed() float64 {
	m.mu.RLock()
	entries := make([]*securityEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	m.mu.RUnlock()

	total := 0.0
	for _, entry := range entries {
		total += m.reservedMarginInAccountCurrency(entry)
	}
	return total
}

// reservedMarginInAccountCurrency is absolute holdings cost times the
// maintenance requirement, summed across Net/Long/Short buckets
func (m *Manager) reservedMarginInAccountCurrency(entry *securityEntry) float64 {
	if entry.margin == nil || !entry.holdings.Invested() {
		return 0
	}
	reserved := entry.holdings.AbsoluteHoldingsCost() * entry.margin.MaintenanceMarginRequirement()
	converted, err := m.settled.ConvertToAccountCurrency(reserved, entry.security.QuoteCurrency())
	if err != nil {
		m.log.Warn().
			Err(err).
			Str("symbol", entry.security.Symbol.Value).
			Msg("Cannot convert reserved margin to account currency, contributing 0")
		return 0
	}
	return converted
}

// UnsettledCashTotal returns the unsettled book's account-currency value
func (m *Manager) UnsettledCashTotal() float64 {
	return m.unsettled.TotalValueInAccountCurrency()
}

// SettledCashBalance returns the settled balance held in one currency, in
// that currency. Cash-only venues limit buying power to this balance.
func (m *Manager) SettledCashBalance(currency string) float64 {
	if cash, ok := m.settled.Get(currency); ok {
		return cash.Amount()
	}
	return 0
}

// MarginRemaining is total portfolio value minus unsettled cash minus total
// margin used. Unsettled proceeds cannot collateralize new positions.
func (m *Manager) MarginRemaining() float64 {
	return m.TotalPortfolioValue() - m.UnsettledCashTotal() - m.TotalMarginUsed()
}

// TotalPortfolioValueForCurrency partitions the valuation by settlement
// currency: only cash held in that currency and holdings quoted in it
// contribute. The result is expressed in that currency, not in account
// currency, so venues margining each currency independently compare
// like with like.
func (m *Manager) TotalPortfolioValueForCurrency(currency string) float64 {
	total := 0.0
	if cash, ok := m.settled.Get(currency); ok {
		total += cash.Amount()
	}
	if cash, ok := m.unsettled.Get(currency); ok {
		total += cash.Amount()
	}

	m.mu.RLock()
	entries := make([]*securityEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	m.mu.RUnlock()

	for _, entry := range entries {
		if !entry.holdings.Invested() || entry.security.QuoteCurrency() != currency {
			continue
		}
		t := entry.security.Symbol.Type
		switch {
		case domain.IsCurrencyPairType(t) && !t.IsMarginSettled():
			continue
		case t.IsMarginSettled():
			total += entry.holdings.UnrealizedProfit()
		default:
			total += entry.holdings.HoldingsValue()
		}
	}
	return total
}

// TotalMarginUsedForCurrency sums reserved margin for holdings quoted in the
// currency, expressed in that currency
func (m *Manager) TotalMarginUsedForCurrency(currency string) float64 {
	m.mu.RLock()
	entries := make([]*securityEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	m.mu.RUnlock()

	total := 0.0
	for _, entry := range entries {
		if entry.margin == nil || !entry.holdings.Invested() || entry.security.QuoteCurrency() != currency {
			continue
		}
		total += entry.holdings.AbsoluteHoldingsCost() * entry.margin.MaintenanceMarginRequirement()
	}
	return total
}

// UnsettledCashTotalForCurrency returns the unsettled balance for one
// currency, in that currency
func (m *Manager) UnsettledCashTotalForCurrency(currency string) float64 {
	if cash, ok := m.unsettled.Get(currency); ok {
		return cash.Amount()
	}
	return 0
}

// MarginRemainingForCurrency is the per-currency margin headroom, in that
// currency
func (m *Manager) MarginRemainingForCurrency(currency string) float64 {
	return m.TotalPortfolioValueForCurrency(currency) -
		m.UnsettledCashTotalForCurrency(currency) -
		m.TotalMarginUsedForCurrency(currency)
}
