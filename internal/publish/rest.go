package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/volumewatch/volume-data/internal/model"
)

// RESTConfig holds the PostgREST-compatible store endpoint.
type RESTConfig struct {
	URL            string        // Base URL, no trailing slash
	ServiceRoleKey string        // Elevated key; reads are public, writes are not
	Table          string        // Target table name
	Timeout        time.Duration // Per-request timeout
	ChunkSize      int           // Rows per upload request
}

// RESTPublisher upserts snapshot rows through the store's REST interface.
type RESTPublisher struct {
	cfg        RESTConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRESTPublisher creates a RESTPublisher.
func NewRESTPublisher(cfg RESTConfig, logger *slog.Logger) *RESTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Table == "" {
		cfg.Table = "volume_snapshots"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 500
	}
	return &RESTPublisher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// snapshotRow is the wire shape of one store row. Trade dates are bare
// dates; fetch timestamps carry their offsets.
type snapshotRow struct {
	BatchID           string           `json:"batch_id"`
	Ticker            string           `json:"ticker"`
	LastTradeDate     string           `json:"last_trade_date"`
	PreviousTradeDate string           `json:"previous_trade_date"`
	LatestVolume      int64            `json:"latest_volume"`
	PreviousVolume    int64            `json:"previous_volume"`
	VolumeRatio       *decimal.Decimal `json:"volume_ratio"`
	VolumeChangePct   *decimal.Decimal `json:"volume_change_pct"`
	IsSpike           bool             `json:"is_spike"`
	FetchedAtUTC      string           `json:"fetched_at_utc"`
	FetchedAtKST      string           `json:"fetched_at_kst"`
}

func toRow(batchID uuid.UUID, s model.VolumeSnapshot) snapshotRow {
	return snapshotRow{
		BatchID:           batchID.String(),
		Ticker:            s.Ticker,
		LastTradeDate:     s.LastTradeDate.Format("2006-01-02"),
		PreviousTradeDate: s.PreviousTradeDate.Format("2006-01-02"),
		LatestVolume:      s.LatestVolume,
		PreviousVolume:    s.PreviousVolume,
		VolumeRatio:       s.VolumeRatio,
		VolumeChangePct:   s.VolumeChangePct,
		IsSpike:           s.IsSpike,
		FetchedAtUTC:      s.FetchedAtUTC.Format(time.RFC3339),
		FetchedAtKST:      s.FetchedAtKST.Format(time.RFC3339),
	}
}

// Publish uploads snapshots in fixed-size chunks. A rejected chunk is
// bisected and retried so one poison row cannot sink the rest; rows that
// still fail are counted, not hidden.
func (p *RESTPublisher) Publish(ctx context.Context, batchID uuid.UUID, snapshots []model.VolumeSnapshot) (PublishResult, error) {
	var result PublishResult
	if len(snapshots) == 0 {
		return result, nil
	}

	rows := make([]snapshotRow, len(snapshots))
	for i, s := range snapshots {
		rows[i] = toRow(batchID, s)
	}

	total := (len(rows) + p.cfg.ChunkSize - 1) / p.cfg.ChunkSize
	for i := 0; i < len(rows); i += p.cfg.ChunkSize {
		end := i + p.cfg.ChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[i:end]

		if err := ctx.Err(); err != nil {
			result.Failed += len(rows) - i
			return result, err
		}

		if err := p.post(ctx, chunk); err != nil {
			p.logger.Warn("upload chunk rejected, retrying subset",
				"rows", len(chunk),
				"err", err,
			)
			p.retrySubset(ctx, chunk, &result)
		} else {
			result.Written += len(chunk)
		}

		p.logger.Debug("uploaded chunk",
			"chunk", i/p.cfg.ChunkSize+1,
			"chunks_total", total,
			"written", result.Written,
			"failed", result.Failed,
		)
	}

	if result.Written == 0 && result.Failed > 0 {
		return result, fmt.Errorf("store rejected all %d rows", result.Failed)
	}
	return result, nil
}

// retrySubset bisects a rejected chunk down to single rows.
func (p *RESTPublisher) retrySubset(ctx context.Context, rows []snapshotRow, result *PublishResult) {
	if len(rows) == 0 {
		return
	}
	if ctx.Err() != nil {
		result.Failed += len(rows)
		return
	}
	if len(rows) == 1 {
		if err := p.post(ctx, rows); err != nil {
			p.logger.Error("row permanently rejected",
				"ticker", rows[0].Ticker,
				"err", err,
			)
			result.Failed++
			return
		}
		result.Written++
		return
	}

	mid := len(rows) / 2
	for _, half := range [][]snapshotRow{rows[:mid], rows[mid:]} {
		if err := p.post(ctx, half); err != nil {
			p.retrySubset(ctx, half, result)
		} else {
			result.Written += len(half)
		}
	}
}

// post performs one upsert request. Duplicate (batch_id, ticker) rows
// merge instead of erroring, backed by the store's uniqueness constraint.
func (p *RESTPublisher) post(ctx context.Context, rows []snapshotRow) error {
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal rows: %w", err)
	}

	url := p.cfg.URL + "/rest/v1/" + p.cfg.Table + "?on_conflict=batch_id,ticker"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", p.cfg.ServiceRoleKey)
	req.Header.Set("Authorization", "Bearer "+p.cfg.ServiceRoleKey)
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("store error %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	return nil
}
