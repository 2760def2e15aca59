package buyingpower

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aprovatas/margind/internal/domain"
	"github.com/aprovatas/margind/internal/events"
	"github.com/aprovatas/margind/internal/modules/securities"
)

// ModelSource resolves the buying-power model configured for a symbol
type ModelSource interface {
	ModelFor(symbolValue string) (Model, bool)
}

// Handler handles margin and order-admission HTTP requests
type Handler struct {
	portfolio PortfolioReader
	directory *securities.Directory
	models    ModelSource
	events    *events.Manager
	log       zerolog.Logger
}

// NewHandler creates a new buying-power handler
func NewHandler(portfolio PortfolioReader, directory *securities.Directory, models ModelSource, ev *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		portfolio: portfolio,
		directory: directory,
		models:    models,
		events:    ev,
		log:       log.With().Str("handler", "buyingpower").Logger(),
	}
}

// HandleGetMargin returns the margin configuration and state for a symbol
// GET /api/margin/{symbol}
func (h *Handler) HandleGetMargin(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	security, ok := h.directory.Get(symbol)
	if !ok {
		h.writeError(w, http.StatusNotFound, "unknown symbol "+symbol)
		return
	}
	model, ok := h.models.ModelFor(symbol)
	if !ok {
		h.writeError(w, http.StatusNotFound, "no margin model for "+symbol)
		return
	}

	reserved := 0.0
	if set, ok := h.portfolio.Holdings(symbol); ok {
		reserved = model.ReservedBuyingPowerForPosition(security, set).Value
	}

	h.writeJSON(w, map[string]interface{}{
		"symbol":                         symbol,
		"leverage":                       model.Leverage(),
		"initial_margin_requirement":     model.InitialMarginRequirement(),
		"maintenance_margin_requirement": model.MaintenanceMarginRequirement(),
		"reserved_buying_power":          reserved,
		"buying_power_buy":               model.GetBuyingPower(h.portfolio, security, domain.OrderDirectionBuy).Value,
		"buying_power_sell":              model.GetBuyingPower(h.portfolio, security, domain.OrderDirectionSell).Value,
	})
}

// orderCheckRequest is the POST body for order admission checks
type orderCheckRequest struct {
	OrderID    string  `json:"order_id"`
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"`
	Quantity   float64 `json:"quantity"`
	LimitPrice float64 `json:"limit_price"`
}

// HandleCheckOrder runs the buying-power admission check for an order
// POST /api/orders/check
func (h *Handler) HandleCheckOrder(w http.ResponseWriter, r *http.Request) {
	var req orderCheckRequest
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
	model, ok := h.models.ModelFor(symbol)
	if !ok {
		h.writeError(w, http.StatusNotFound, "no margin model for "+symbol)
		return
	}

	orderType := domain.OrderType(req.Type)
	if orderType == "" {
		orderType = domain.OrderTypeMarket
	}
	order := &domain.Order{
		ID:         req.OrderID,
		Symbol:     security.Symbol,
		Type:       orderType,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	}

	result, err := model.HasSufficientBuyingPowerForOrder(h.portfolio, security, order)
	if err != nil {
		if errors.Is(err, domain.ErrMissingOrderTicket) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !result.IsSufficient && h.events != nil {
		h.events.Emit("buyingpower", &events.OrderRejectedData{
			OrderID: req.OrderID,
			Symbol:  symbol,
			Reason:  result.Reason,
		})
	}
	h.writeJSON(w, result)
}

// orderSizeRequest is the POST body for target-allocation sizing
type orderSizeRequest struct {
	Symbol         string  `json:"symbol"`
	TargetFraction float64 `json:"target_fraction"`
}

// HandleSizeOrder solves for the largest order reaching a target allocation
// POST /api/orders/size
func (h *Handler) HandleSizeOrder(w http.ResponseWriter, r *http.Request) {
	var req orderSizeRequest
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
	model, ok := h.models.ModelFor(symbol)
	if !ok {
		h.writeError(w, http.StatusNotFound, "no margin model for "+symbol)
		return
	}

	result, err := model.GetMaximumOrderQuantityForTargetValue(h.portfolio, security, req.TargetFraction)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Order sizing failed")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, result)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
