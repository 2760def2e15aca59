package portfolio

import (
	"time"

	"github.com/aprovatas/margind/internal/events"
)

// UnsettledCashAmount is a single parcel of sale proceeds waiting for
// delivery. It matures at SettlementTimeUTC inclusive: a scan at exactly
// that instant moves the full amount into settled cash.
type UnsettledCashAmount struct {
	Currency          string
	Amount            float64
	SettlementTimeUTC time.Time
}

// AddUnsettledCash records pending sale proceeds. The unsettled cash book
// reflects the parcel immediately so the valuation stays complete; only
// margin computations exclude it until the settlement scan matures it.
func (m *Manager) AddUnsettledCash(amount UnsettledCashAmount) {
	m.unsettledMu.Lock()
	m.unsettledAmounts = append(m.unsettledAmounts, amount)
	m.unsettledMu.Unlock()

	m.unsettled.GetOrCreate(amount.Currency).AddAmount(amount.Amount)

	m.log.Debug().
		Str("currency", amount.Currency).
		Float64("amount", amount.Amount).
		Time("settlement_time", amount.SettlementTimeUTC).
		Msg("Unsettled cash added")
}

// UnsettledCashAmounts returns a snapshot of the pending parcels
func (m *Manager) UnsettledCashAmounts() []UnsettledCashAmount {
	m.unsettledMu.Lock()
	defer m.unsettledMu.Unlock()
	out := make([]UnsettledCashAmount, len(m.unsettledAmounts))
	copy(out, m.unsettledAmounts)
	return out
}

// ScanForCashSettlement matures every parcel whose settlement time has been
// reached. Each matured parcel is debited from the unsettled book and
// credited to the settled book in the same pass, so the sum of the two books
// never changes mid-scan.
func (m *Manager) ScanForCashSettlement(now time.Time) {
	m.unsettledMu.Lock()

	var settledCount int
	var settledValue float64
	remaining := m.unsettledAmounts[:0]
	for _, parcel := range m.unsettledAmounts {
		if now.Before(parcel.SettlementTimeUTC) {
			remaining = append(remaining, parcel)
			continue
		}
		m.unsettled.GetOrCreate(parcel.Currency).AddAmount(-parcel.Amount)
		m.settled.GetOrCreate(parcel.Currency).AddAmount(parcel.Amount)
		settledCount++
		settledValue += parcel.Amount
	}
	m.unsettledAmounts = remaining
	pending := len(remaining)

	m.unsettledMu.Unlock()

	if settledCount == 0 {
		return
	}

	m.Invalidate("cash settled")
	if m.events != nil {
		m.events.Emit("portfolio", &events.SettlementScannedData{
			SettledCount: settledCount,
			SettledValue: settledValue,
			PendingCount: pending,
		})
	}
	m.log.Info().
		Int("settled_count", settledCount).
		Float64("settled_value", settledValue).
		Int("pending_count", pending).
		Msg("Settlement scan matured cash")
}
