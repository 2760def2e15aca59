package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aprovatas/margind/internal/database"
	"github.com/aprovatas/margind/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return NewRepository(db.Conn(), zerolog.Nop())
}

func journalFill(orderID string, quantity, price float64, at time.Time) *domain.Fill {
	return &domain.Fill{
		OrderID:  orderID,
		Symbol:   domain.NewSymbol("AAPL", domain.SecurityTypeEquity, domain.MarketUSA),
		Quantity: quantity,
		Price:    price,
		Fee:      domain.NewMoney(1, "USD"),
		TimeUTC:  at,
	}
}

func TestRecordAndExists(t *testing.T) {
	repo := newTestRepo(t)
	at := time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC)

	exists, err := repo.Exists("o1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.Record(journalFill("o1", 100, 10, at), 1, false))

	exists, err = repo.Exists("o1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRecordSkipsRedeliveredFills(t *testing.T) {
	repo := newTestRepo(t)
	at := time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC)

	fill := journalFill("o1", 100, 10, at)
	require.NoError(t, repo.Record(fill, 1, false))
	require.NoError(t, repo.Record(fill, 1, false), "a replayed fill is not an error")

	entries, err := repo.GetHistory(10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecordKeepsPartialFillsOfOneOrder(t *testing.T) {
	repo := newTestRepo(t)
	at := time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC)

	// Two partial executions of the same order are distinct journal entries
	require.NoError(t, repo.Record(journalFill("o1", 60, 10, at), 1, false))
	require.NoError(t, repo.Record(journalFill("o1", 40, 10.05, at.Add(time.Second)), 1, false))

	entries, err := repo.GetHistory(10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestGetHistoryOrdersMostRecentFirst(t *testing.T) {
	repo := newTestRepo(t)
	at := time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC)

	require.NoError(t, repo.Record(journalFill("o1", 100, 10, at), 1, false))
	require.NoError(t, repo.Record(journalFill("o2", -50, 11, at.Add(time.Hour)), 1, true))

	entries, err := repo.GetHistory(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "o2", entries[0].OrderID)
	assert.True(t, entries[0].Closing)
	assert.Equal(t, "o1", entries[1].OrderID)
	assert.False(t, entries[1].Closing)

	limited, err := repo.GetHistory(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGetBySymbolNormalizesCase(t *testing.T) {
	repo := newTestRepo(t)
	at := time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC)
	require.NoError(t, repo.Record(journalFill("o1", 100, 10, at), 1, false))

	entries, err := repo.GetBySymbol("aapl", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "AAPL", entries[0].Symbol)

	none, err := repo.GetBySymbol("MSFT", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetPayloadRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	at := time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC)
	original := journalFill("o1", 100, 10.5, at)
	require.NoError(t, repo.Record(original, 1, false))

	entries, err := repo.GetHistory(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	decoded, err := repo.GetPayload(entries[0].ID)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.Equal(t, original.OrderID, decoded.OrderID)
	assert.Equal(t, original.Symbol, decoded.Symbol)
	assert.Equal(t, original.Quantity, decoded.Quantity)
	assert.Equal(t, original.Price, decoded.Price)
	assert.Equal(t, original.Fee, decoded.Fee)
	assert.True(t, original.TimeUTC.Equal(decoded.TimeUTC))

	missing, err := repo.GetPayload(99999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
