package journal

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
)

// Handler handles fill journal HTTP requests
type Handler struct {
	repo *Repository
	log  zerolog.Logger
}

// NewHandler creates a new journal handler
func NewHandler(repo *Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "journal").Logger(),
	}
}

// HandleGetFills returns journaled fills, most recent first
// GET /api/journal/fills?limit=50&symbol=AAPL
func (h *Handler) HandleGetFills(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var entries []Entry
	var err error
	if symbol := r.URL.Query().Get("symbol"); symbol != "" {
		entries, err = h.repo.GetBySymbol(symbol, limit)
	} else {
		entries, err = h.repo.GetHistory(limit)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query journal")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
