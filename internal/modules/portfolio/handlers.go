package portfolio

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/rs/zerolog"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	manager *Manager
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(manager *Manager, log zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleGetSummary returns the portfolio valuation summary
// GET /api/portfolio
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]interface{}{
		"account_currency":      h.manager.AccountCurrency(),
		"total_portfolio_value": h.manager.TotalPortfolioValue(),
		"total_margin_used":     h.manager.TotalMarginUsed(),
		"unsettled_cash":        h.manager.UnsettledCashTotal(),
		"margin_remaining":      h.manager.MarginRemaining(),
	})
}

// HandleGetCash returns both cash books
// GET /api/portfolio/cash
func (h *Handler) HandleGetCash(w http.ResponseWriter, r *http.Request) {
	type cashEntry struct {
		Currency               string  `json:"currency"`
		Amount                 float64 `json:"amount"`
		ConversionRate         float64 `json:"conversion_rate"`
		ValueInAccountCurrency float64 `json:"value_in_account_currency"`
	}

	settled := []cashEntry{}
	for _, cash := range h.manager.SettledCashBook().All() {
		settled = append(settled, cashEntry{
			Currency:               cash.Currency(),
			Amount:                 cash.Amount(),
			ConversionRate:         cash.ConversionRate(),
			ValueInAccountCurrency: cash.ValueInAccountCurrency(),
		})
	}
	unsettled := []cashEntry{}
	for _, cash := range h.manager.UnsettledCashBook().All() {
		unsettled = append(unsettled, cashEntry{
			Currency:               cash.Currency(),
			Amount:                 cash.Amount(),
			ConversionRate:         cash.ConversionRate(),
			ValueInAccountCurrency: cash.ValueInAccountCurrency(),
		})
	}

	h.writeJSON(w, map[string]interface{}{
		"settled":   settled,
		"unsettled": unsettled,
	})
}

// HandleGetHoldings returns all open positions
// GET /api/portfolio/holdings
func (h *Handler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	h.manager.mu.RLock()
	entries := make([]*securityEntry, 0, len(h.manager.entries))
	for _, entry := range h.manager.entries {
		entries = append(entries, entry)
	}
	h.manager.mu.RUnlock()

	var result []map[string]interface{}
	for _, entry := range entries {
		if !entry.holdings.Invested() {
			continue
		}
		net := entry.holdings.Net
		result = append(result, map[string]interface{}{
			"symbol":             entry.security.Symbol.Value,
			"type":               string(entry.security.Symbol.Type),
			"quantity":           net.Quantity(),
			"quantity_t0":        net.UnsettledQuantity(),
			"average_price":      net.AveragePrice(),
			"last_price":         net.LastPrice(),
			"unrealized_profit":  entry.holdings.UnrealizedProfit(),
			"realized_profit":    net.TotalRealizedProfit(),
			"total_fees":         net.TotalFees(),
			"holdings_value":     entry.holdings.HoldingsValue(),
			"quote_currency":     entry.security.QuoteCurrency(),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i]["symbol"].(string) < result[j]["symbol"].(string)
	})
	h.writeJSON(w, result)
}

// HandleGetExposures returns the exposure report
// GET /api/portfolio/exposures
func (h *Handler) HandleGetExposures(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.manager.Exposures())
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
