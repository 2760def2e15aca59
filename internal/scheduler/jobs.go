package scheduler

import (
	"time"

	"github.com/aprovatas/margind/internal/modules/portfolio"
)

// SettlementScanJob matures unsettled sale proceeds whose settlement time
// has passed
type SettlementScanJob struct {
	Portfolio *portfolio.Manager
}

// Name returns the job name
func (j *SettlementScanJob) Name() string { return "settlement_scan" }

// Run scans the pending unsettled-cash parcels against the current clock
func (j *SettlementScanJob) Run() error {
	j.Portfolio.ScanForCashSettlement(time.Now().UTC())
	return nil
}

// TradingDayRollJob graduates every holding's same-day bucket to settled
// status at the day boundary
type TradingDayRollJob struct {
	Portfolio *portfolio.Manager
}

// Name returns the job name
func (j *TradingDayRollJob) Name() string { return "trading_day_roll" }

// Run rolls the trading day
func (j *TradingDayRollJob) Run() error {
	j.Portfolio.TradingDayChanged(time.Now().UTC().Format("2006-01-02"))
	return nil
}

// Checkpointer folds a sqlite write-ahead log into the main file
type Checkpointer interface {
	WALCheckpoint() error
}

// WALCheckpointJob keeps the journal database's WAL from growing unbounded
type WALCheckpointJob struct {
	DB Checkpointer
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string { return "wal_checkpoint" }

// Run checkpoints the WAL
func (j *WALCheckpointJob) Run() error {
	return j.DB.WALCheckpoint()
}
