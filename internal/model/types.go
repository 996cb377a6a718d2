package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// KSTOffset is the fixed UTC+9 offset used for the secondary fetch timestamp.
var KSTOffset = time.FixedZone("KST", 9*60*60)

// Session is a single trading session's volume observation.
type Session struct {
	Date   time.Time // Session date (UTC midnight)
	Volume int64     // Total traded volume
}

// VolumeSnapshot is the persisted unit: one per ticker per batch.
//
// A snapshot exists only if two distinct positive-volume sessions were
// resolved for the ticker. VolumeRatio and VolumeChangePct are nil only in
// the defensive case where PreviousVolume is not positive.
type VolumeSnapshot struct {
	BatchID uuid.UUID `json:"batch_id"` // Shared by every record of one pipeline run
	Ticker  string    `json:"ticker"`

	LastTradeDate     time.Time `json:"last_trade_date"`     // Most recent session
	PreviousTradeDate time.Time `json:"previous_trade_date"` // Session before it (strictly earlier)

	LatestVolume   int64 `json:"latest_volume"`
	PreviousVolume int64 `json:"previous_volume"`

	VolumeRatio     *decimal.Decimal `json:"volume_ratio"`      // latest / previous, 6 fractional digits
	VolumeChangePct *decimal.Decimal `json:"volume_change_pct"` // (latest - previous) / previous * 100
	IsSpike         bool             `json:"is_spike"`          // VolumeRatio >= 2.0 (inclusive)

	// Same instant in two fixed offsets, captured once per ticker at fetch time.
	FetchedAtUTC time.Time `json:"fetched_at_utc"`
	FetchedAtKST time.Time `json:"fetched_at_kst"`
}

// RunStatus describes how a pipeline run ended.
type RunStatus string

const (
	// StatusCompleted: every chunk processed and published.
	StatusCompleted RunStatus = "completed"

	// StatusPartial: rate-limit retries were exhausted; snapshots gathered
	// up to that point were still committed.
	StatusPartial RunStatus = "partial"

	// StatusAborted: the run context was cancelled; accumulated snapshots
	// were flushed before exit.
	StatusAborted RunStatus = "aborted"

	// StatusDryRun: fetch and compute ran, publish was skipped.
	StatusDryRun RunStatus = "dry-run"
)

// RunReport summarizes one pipeline run. Callers distinguish a full batch
// from a degraded one via Status and Snapshots vs TickersTotal.
type RunReport struct {
	BatchID          uuid.UUID
	Status           RunStatus
	TickersTotal     int // Universe size after any cap
	TickersProcessed int // Tickers actually fetched
	Snapshots        int // Snapshots computed
	Published        int // Rows the store accepted
	PublishFailed    int // Rows the store rejected after subset retries
	ChunksProcessed  int
	ChunksTotal      int
	Elapsed          time.Duration
}
