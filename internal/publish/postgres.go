package publish

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/volumewatch/volume-data/internal/model"
)

const insertSnapshotSQL = `
	INSERT INTO volume_snapshots (
		batch_id, ticker, last_trade_date, previous_trade_date,
		latest_volume, previous_volume, volume_ratio, volume_change_pct,
		is_spike, fetched_at_utc, fetched_at_kst
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (batch_id, ticker) DO NOTHING
`

// PGPublisher writes snapshot rows over a direct PostgreSQL connection.
type PGPublisher struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPGPublisher creates a PGPublisher.
func NewPGPublisher(db *pgxpool.Pool, logger *slog.Logger) *PGPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGPublisher{db: db, logger: logger}
}

// Publish inserts all rows in one pipelined batch. If the batch fails the
// rows are retried one at a time, so a single rejected row does not take
// the rest down with it. Duplicate (batch_id, ticker) rows are dropped by
// the store's uniqueness constraint and counted as written.
func (p *PGPublisher) Publish(ctx context.Context, batchID uuid.UUID, snapshots []model.VolumeSnapshot) (PublishResult, error) {
	var result PublishResult
	if len(snapshots) == 0 {
		return result, nil
	}

	conflicts, err := p.batchInsert(ctx, batchID, snapshots)
	if err == nil {
		result.Written = len(snapshots)
		if conflicts > 0 {
			p.logger.Debug("duplicate rows dropped by constraint", "conflicts", conflicts)
		}
		return result, nil
	}

	p.logger.Warn("batch insert failed, retrying rows individually",
		"rows", len(snapshots),
		"err", err,
	)
	return p.insertIndividually(ctx, batchID, snapshots)
}

func (p *PGPublisher) batchInsert(ctx context.Context, batchID uuid.UUID, snapshots []model.VolumeSnapshot) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, s := range snapshots {
		batch.Queue(insertSnapshotSQL, insertArgs(batchID, s)...)
	}

	results := p.db.SendBatch(ctx, batch)
	defer results.Close()

	for range snapshots {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

func (p *PGPublisher) insertIndividually(ctx context.Context, batchID uuid.UUID, snapshots []model.VolumeSnapshot) (PublishResult, error) {
	var result PublishResult

	for i, s := range snapshots {
		if ctx.Err() != nil {
			result.Failed += len(snapshots) - i
			return result, ctx.Err()
		}
		if _, err := p.db.Exec(ctx, insertSnapshotSQL, insertArgs(batchID, s)...); err != nil {
			p.logger.Error("row permanently rejected",
				"ticker", s.Ticker,
				"err", err,
			)
			result.Failed++
			continue
		}
		result.Written++
	}

	return result, nil
}

func insertArgs(batchID uuid.UUID, s model.VolumeSnapshot) []any {
	var ratio, pct any
	if s.VolumeRatio != nil {
		ratio = s.VolumeRatio.String()
	}
	if s.VolumeChangePct != nil {
		pct = s.VolumeChangePct.String()
	}
	return []any{
		batchID, s.Ticker, s.LastTradeDate, s.PreviousTradeDate,
		s.LatestVolume, s.PreviousVolume, ratio, pct,
		s.IsSpike, s.FetchedAtUTC, s.FetchedAtKST,
	}
}
