package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aprovatas/margind/internal/domain"
	"github.com/aprovatas/margind/internal/modules/buyingpower"
	"github.com/aprovatas/margind/internal/modules/portfolio"
	"github.com/aprovatas/margind/internal/modules/securities"
)

// ModelFactory builds the buying-power model for a newly registered security
type ModelFactory func(strategy buyingpower.VenueStrategy, leverage float64) (buyingpower.Model, error)

// SetupHandlers handles the write side of the API: registering securities,
// feeding fills, prices, cash and order tickets into the accounting core.
// It lives in the server package because registration spans every module.
type SetupHandlers struct {
	directory    *securities.Directory
	registry     *securities.PropertiesRegistry
	portfolio    *portfolio.Manager
	models       *buyingpower.ModelRegistry
	modelFactory ModelFactory
	log          zerolog.Logger
}

// NewSetupHandlers creates a new setup handlers instance
func NewSetupHandlers(
	directory *securities.Directory,
	registry *securities.PropertiesRegistry,
	pm *portfolio.Manager,
	models *buyingpower.ModelRegistry,
	factory ModelFactory,
	log zerolog.Logger,
) *SetupHandlers {
	return &SetupHandlers{
		directory:    directory,
		registry:     registry,
		portfolio:    pm,
		models:       models,
		modelFactory: factory,
		log:          log.With().Str("handler", "setup").Logger(),
	}
}

// registerSecurityRequest is the POST body for security registration
type registerSecurityRequest struct {
	Symbol             string  `json:"symbol"`
	Type               string  `json:"type"`
	Market             string  `json:"market"`
	QuoteCurrency      string  `json:"quote_currency"`
	ContractMultiplier float64 `json:"contract_multiplier"`
	LotSize            float64 `json:"lot_size"`
	SettlementDays     int     `json:"settlement_days"`
	Leverage           float64 `json:"leverage"`
	VenueStrategy      string  `json:"venue_strategy"`
}

// HandleRegisterSecurity registers a security, builds its buying-power model
// and wires conversion feeds for its quote currency
// POST /api/securities
func (h *SetupHandlers) HandleRegisterSecurity(w http.ResponseWriter, r *http.Request) {
	var req registerSecurityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Symbol == "" || req.QuoteCurrency == "" {
		h.writeError(w, http.StatusBadRequest, "symbol and quote_currency are required")
		return
	}

	symbol := domain.NewSymbol(req.Symbol, domain.SecurityType(strings.ToUpper(req.Type)), req.Market)
	props := domain.DefaultSymbolProperties(strings.ToUpper(req.QuoteCurrency))
	if req.ContractMultiplier > 0 {
		props.ContractMultiplier = req.ContractMultiplier
	}
	if req.LotSize > 0 {
		props.LotSize = req.LotSize
	}
	props.SettlementDays = req.SettlementDays

	strategy := buyingpower.VenueStrategy(req.VenueStrategy)
	if strategy == "" {
		strategy = buyingpower.VenueStandard
	}
	model, err := h.modelFactory(strategy, req.Leverage)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	security := h.directory.Add(domain.NewSecurity(symbol, props))
	h.registry.Register(symbol, props)
	h.models.Register(symbol.Value, model)
	h.portfolio.RegisterSecurity(security, model)

	// The quote currency may need a new conversion feed
	h.portfolio.SettledCashBook().GetOrCreate(props.QuoteCurrency)
	if err := h.portfolio.SettledCashBook().EnsureCurrencyDataFeeds(h.directory, h.registry); err != nil {
		h.log.Error().Err(err).Str("symbol", symbol.Value).Msg("Currency feed discovery failed")
	}

	h.log.Info().
		Str("symbol", symbol.Value).
		Str("type", string(symbol.Type)).
		Str("venue_strategy", string(strategy)).
		Msg("Security registered")
	h.writeJSON(w, map[string]interface{}{
		"symbol":         symbol.Value,
		"type":           string(symbol.Type),
		"venue_strategy": string(strategy),
		"leverage":       model.Leverage(),
	})
}

// priceRequest is the PUT body for market-data updates
type priceRequest struct {
	Price float64 `json:"price"`
	Bid   float64 `json:"bid"`
	Ask   float64 `json:"ask"`
}

// HandleUpdatePrice applies a market-data tick to a security and any
// conversion rates bound to it
// PUT /api/securities/{symbol}/price
func (h *SetupHandlers) HandleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	security, ok := h.directory.Get(symbol)
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown symbol "+symbol)
		return
	}

	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Bid > 0 && req.Ask > 0 {
		security.SetQuote(req.Bid, req.Ask)
	}
	if req.Price > 0 {
		security.SetMarketPrice(req.Price)
	}
	h.portfolio.MarketPriceChanged(symbol, security.Price())

	h.writeJSON(w, map[string]interface{}{"symbol": symbol, "price": security.Price()})
}

// fillRequest is the POST body for fill ingestion
type fillRequest struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	FeeAmount   float64   `json:"fee_amount"`
	FeeCurrency string    `json:"fee_currency"`
	TimeUTC     time.Time `json:"time_utc"`
}

// HandleProcessFill routes a brokerage fill into the accounting core
// POST /api/fills
func (h *SetupHandlers) HandleProcessFill(w http.ResponseWriter, r *http.Request) {
	var req fillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	symbol := strings.ToUpper(req.Symbol)
	security, ok := h.directory.Get(symbol)
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown symbol "+symbol)
		return
	}
	if req.TimeUTC.IsZero() {
		req.TimeUTC = time.Now().UTC()
	}

	fill := &domain.Fill{
		OrderID:  req.OrderID,
		Symbol:   security.Symbol,
		Quantity: req.Quantity,
		Price:    req.Price,
		Fee:      domain.NewMoney(req.FeeAmount, strings.ToUpper(req.FeeCurrency)),
		TimeUTC:  req.TimeUTC.UTC(),
	}
	if err := h.portfolio.ProcessFill(fill); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.writeJSON(w, map[string]string{"status": "processed"})
}

// cashRequest is the POST body for authoritative cash balances
type cashRequest struct {
	Currency       string  `json:"currency"`
	Amount         float64 `json:"amount"`
	ConversionRate float64 `json:"conversion_rate"`
}

// HandleSetCash replaces the settled balance for a currency
// POST /api/cash
func (h *SetupHandlers) HandleSetCash(w http.ResponseWriter, r *http.Request) {
	var req cashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Currency == "" {
		h.writeError(w, http.StatusBadRequest, "currency is required")
		return
	}

	currency := strings.ToUpper(req.Currency)
	h.portfolio.SetCash(currency, req.Amount, req.ConversionRate)
	if err := h.portfolio.SettledCashBook().EnsureCurrencyDataFeeds(h.directory, h.registry); err != nil {
		// An explicitly-funded currency with no conversion pair is a
		// configuration fault the caller must hear about
		h.log.Error().Err(err).Str("currency", currency).Msg("Currency feed discovery failed")
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.writeJSON(w, map[string]interface{}{"currency": currency, "amount": req.Amount})
}

// ticketRequest is the POST body for order ticket registration
type ticketRequest struct {
	OrderID        string  `json:"order_id"`
	Symbol         string  `json:"symbol"`
	Quantity       float64 `json:"quantity"`
	QuantityFilled float64 `json:"quantity_filled"`
	Status         string  `json:"status"`
}

// HandleRegisterTicket tracks an order ticket so admission checks can find
// it and closing orders reserve quantity
// POST /api/tickets
func (h *SetupHandlers) HandleRegisterTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	status := domain.OrderStatus(strings.ToUpper(req.Status))
	if status == "" {
		status = domain.OrderStatusSubmitted
	}
	ticket := &domain.OrderTicket{
		OrderID:        req.OrderID,
		Quantity:       req.Quantity,
		QuantityFilled: req.QuantityFilled,
		Status:         status,
	}
	if err := h.portfolio.RegisterOrderTicket(strings.ToUpper(req.Symbol), ticket); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeJSON(w, ticket)
}

// HandleRemoveTicket stops tracking a closed order ticket
// DELETE /api/tickets/{symbol}/{order_id}
func (h *SetupHandlers) HandleRemoveTicket(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	orderID := chi.URLParam(r, "order_id")
	h.portfolio.RemoveOrderTicket(symbol, orderID)
	h.writeJSON(w, map[string]string{"status": "removed"})
}

// writeJSON writes a JSON response
func (h *SetupHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (h *SetupHandlers) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
