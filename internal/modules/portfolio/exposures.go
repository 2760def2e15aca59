package portfolio

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// SymbolExposure is one row of the exposure report
type SymbolExposure struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Unrealized   float64 `json:"unrealized_profit"`
	AveragePrice float64 `json:"average_price"`
}

// ExposureReport summarizes open positions against portfolio value
type ExposureReport struct {
	TotalPortfolioValue float64          `json:"total_portfolio_value"`
	GrossExposure       float64          `json:"gross_exposure"`
	NetExposure         float64          `json:"net_exposure"`
	Positions           []SymbolExposure `json:"positions"`
}

// Exposures builds the exposure report. Values are in account currency;
// positions whose conversion rate is unresolved contribute zero, consistent
// with the valuation. Weights are against gross exposure.
func (m *Manager) Exposures() *ExposureReport {
	m.mu.RLock()
	entries := make([]*securityEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	m.mu.RUnlock()

	report := &ExposureReport{
		TotalPortfolioValue: m.TotalPortfolioValue(),
	}

	values := make([]float64, 0, len(entries))
	absValues := make([]float64, 0, len(entries))
	for _, entry := range entries {
		if !entry.holdings.Invested() {
			continue
		}
		value := m.holdingValueInAccountCurrency(entry)
		values = append(values, value)
		absValues = append(absValues, math.Abs(value))

		unrealized, err := m.settled.ConvertToAccountCurrency(
			entry.holdings.UnrealizedProfit(), entry.security.QuoteCurrency())
		if err != nil {
			unrealized = 0
		}

		report.Positions = append(report.Positions, SymbolExposure{
			Symbol:       entry.security.Symbol.Value,
			Quantity:     entry.holdings.Quantity(),
			Value:        value,
			Unrealized:   unrealized,
			AveragePrice: entry.holdings.Net.AveragePrice(),
		})
	}

	report.NetExposure = floats.Sum(values)
	report.GrossExposure = floats.Sum(absValues)

	if report.GrossExposure != 0 {
		for i := range report.Positions {
			report.Positions[i].Weight = math.Abs(report.Positions[i].Value) / report.GrossExposure
		}
	}

	sort.Slice(report.Positions, func(i, j int) bool {
		return report.Positions[i].Symbol < report.Positions[j].Symbol
	})
	return report
}
