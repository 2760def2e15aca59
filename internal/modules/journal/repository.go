// Package journal persists processed fills to sqlite for the audit trail.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aprovatas/margind/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Entry is one journaled fill
type Entry struct {
	ID                   int64     `json:"id"`
	OrderID              string    `json:"order_id"`
	Symbol               string    `json:"symbol"`
	Quantity             float64   `json:"quantity"`
	Price                float64   `json:"price"`
	FeeInAccountCurrency float64   `json:"fee"`
	Closing              bool      `json:"closing"`
	ExecutedAt           time.Time `json:"executed_at"`
	CreatedAt            time.Time `json:"created_at"`
}

// fillPayload is the full fill snapshot stored alongside the indexed
// columns, so the journal can reproduce the original event exactly
type fillPayload struct {
	OrderID     string  `msgpack:"order_id"`
	Symbol      string  `msgpack:"symbol"`
	Type        string  `msgpack:"type"`
	Market      string  `msgpack:"market"`
	Quantity    float64 `msgpack:"quantity"`
	Price       float64 `msgpack:"price"`
	FeeAmount   float64 `msgpack:"fee_amount"`
	FeeCurrency string  `msgpack:"fee_currency"`
	TimeUTC     string  `msgpack:"time_utc"`
}

// Repository handles fill journal database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new journal repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "journal").Logger(),
	}
}

// Record inserts a fill into the journal. Re-delivered fills (same order,
// time, quantity and price) are silently skipped so brokerage replays do
// not duplicate the audit trail.
func (r *Repository) Record(fill *domain.Fill, feeInAccountCurrency float64, closing bool) error {
	payload, err := msgpack.Marshal(fillPayload{
		OrderID:     fill.OrderID,
		Symbol:      fill.Symbol.Value,
		Type:        string(fill.Symbol.Type),
		Market:      fill.Symbol.Market,
		Quantity:    fill.Quantity,
		Price:       fill.Price,
		FeeAmount:   fill.Fee.Amount,
		FeeCurrency: fill.Fee.Currency,
		TimeUTC:     fill.TimeUTC.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to encode fill payload: %w", err)
	}

	closingInt := 0
	if closing {
		closingInt = 1
	}

	query := `
		INSERT OR IGNORE INTO fills
		(order_id, symbol, quantity, price, fee, closing, executed_at, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		fill.OrderID,
		strings.ToUpper(strings.TrimSpace(fill.Symbol.Value)),
		fill.Quantity,
		fill.Price,
		feeInAccountCurrency,
		closingInt,
		fill.TimeUTC.Format(time.RFC3339),
		payload,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record fill: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		r.log.Debug().
			Str("order_id", fill.OrderID).
			Msg("Duplicate fill skipped")
		return nil
	}

	r.log.Debug().
		Str("order_id", fill.OrderID).
		Str("symbol", fill.Symbol.Value).
		Float64("quantity", fill.Quantity).
		Msg("Fill journaled")
	return nil
}

// Exists checks if any fill for the given order has been journaled
func (r *Repository) Exists(orderID string) (bool, error) {
	query := "SELECT 1 FROM fills WHERE order_id = ? LIMIT 1"

	var exists int
	err := r.db.QueryRow(query, orderID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check fill existence: %w", err)
	}
	return true, nil
}

// GetHistory retrieves journaled fills, most recent first
func (r *Repository) GetHistory(limit int) ([]Entry, error) {
	query := `
		SELECT id, order_id, symbol, quantity, price, fee, closing, executed_at, created_at
		FROM fills
		ORDER BY executed_at DESC
		LIMIT ?
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get fill history: %w", err)
	}
	defer rows.Close()

	return r.scanEntries(rows)
}

// GetBySymbol retrieves journaled fills for one symbol, most recent first
func (r *Repository) GetBySymbol(symbol string, limit int) ([]Entry, error) {
	query := `
		SELECT id, order_id, symbol, quantity, price, fee, closing, executed_at, created_at
		FROM fills
		WHERE symbol = ?
		ORDER BY executed_at DESC
		LIMIT ?
	`
	rows, err := r.db.Query(query, strings.ToUpper(symbol), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get fills by symbol: %w", err)
	}
	defer rows.Close()

	return r.scanEntries(rows)
}

// GetPayload decodes the stored fill snapshot for a journal entry
func (r *Repository) GetPayload(id int64) (*domain.Fill, error) {
	var blob []byte
	err := r.db.QueryRow("SELECT payload FROM fills WHERE id = ?", id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fill payload: %w", err)
	}

	var payload fillPayload
	if err := msgpack.Unmarshal(blob, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode fill payload: %w", err)
	}
	executed, err := time.Parse(time.RFC3339Nano, payload.TimeUTC)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fill timestamp: %w", err)
	}

	return &domain.Fill{
		OrderID: payload.OrderID,
		Symbol: domain.Symbol{
			Value:  payload.Symbol,
			Type:   domain.SecurityType(payload.Type),
			Market: payload.Market,
		},
		Quantity: payload.Quantity,
		Price:    payload.Price,
		Fee:      domain.NewMoney(payload.FeeAmount, payload.FeeCurrency),
		TimeUTC:  executed,
	}, nil
}

func (r *Repository) scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var entry Entry
		var closing int
		var executedAt, createdAt string

		err := rows.Scan(
			&entry.ID,
			&entry.OrderID,
			&entry.Symbol,
			&entry.Quantity,
			&entry.Price,
			&entry.FeeInAccountCurrency,
			&closing,
			&executedAt,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}

		entry.Closing = closing != 0
		if t, err := time.Parse(time.RFC3339, executedAt); err == nil {
			entry.ExecutedAt = t
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			entry.CreatedAt = t
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fills: %w", err)
	}
	return entries, nil
}
