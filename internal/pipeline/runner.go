package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/volumewatch/volume-data/internal/marketdata"
	"github.com/volumewatch/volume-data/internal/metric"
	"github.com/volumewatch/volume-data/internal/model"
	"github.com/volumewatch/volume-data/internal/publish"
	"github.com/volumewatch/volume-data/internal/universe"
)

// Fetcher resolves a ticker's recent sessions. (nil, nil) means the source
// has no usable data for the ticker.
type Fetcher interface {
	FetchRecentSessions(ctx context.Context, ticker string) ([]model.Session, error)
}

// Config holds orchestration knobs. Always passed explicitly so concurrent
// runs and tests cannot interfere through shared state.
type Config struct {
	ChunkSize       int             // Tickers per chunk
	ChunkPause      time.Duration   // Pause between chunks
	RetryBackoff    []time.Duration // Delays before chunk retries; last entry repeats
	MaxChunkRetries int             // Retries after a chunk's initial attempt
	Workers         int             // Per-chunk fetch concurrency (1 = sequential)
	Limit           int             // Cap on total tickers (0 = all)
	DryRun          bool            // Fetch and compute, skip publish
}

// DefaultConfig returns the standard production settings.
func DefaultConfig() Config {
	return Config{
		ChunkSize:       200,
		ChunkPause:      10 * time.Second,
		RetryBackoff:    []time.Duration{5 * time.Minute, 10 * time.Minute, 20 * time.Minute},
		MaxChunkRetries: 3,
		Workers:         1,
	}
}

// Runner drives one batch through fetch, compute, and publish.
type Runner struct {
	cfg     Config
	fetcher Fetcher
	pub     publish.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, fetcher Fetcher, pub publish.Publisher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:     cfg,
		fetcher: fetcher,
		pub:     pub,
		logger:  logger,
		now:     time.Now,
	}
}

// chunkOutcome classifies how one chunk (including its retries) ended.
type chunkOutcome int

const (
	chunkOK chunkOutcome = iota
	chunkRateLimited
	chunkCancelled
)

// Run executes one batch over the given ticker universe and reports the
// outcome. The returned error is non-nil only when the store rejected the
// entire batch; degraded completions surface through RunReport.Status.
func (r *Runner) Run(ctx context.Context, tickers []string) (model.RunReport, error) {
	start := r.now()
	batchID := uuid.New()

	if r.cfg.Limit > 0 && len(tickers) > r.cfg.Limit {
		tickers = tickers[:r.cfg.Limit]
		r.logger.Info("limiting run", "tickers", len(tickers))
	}

	chunks := universe.Chunk(tickers, r.cfg.ChunkSize)
	report := model.RunReport{
		BatchID:      batchID,
		TickersTotal: len(tickers),
		ChunksTotal:  len(chunks),
	}

	r.logger.Info("starting volume snapshot run",
		"batch_id", batchID,
		"tickers", len(tickers),
		"chunks", len(chunks),
		"chunk_size", r.cfg.ChunkSize,
		"workers", r.cfg.Workers,
		"dry_run", r.cfg.DryRun,
	)

	var (
		batch    []model.VolumeSnapshot
		aborted  bool
		degraded bool
	)

	for i, chunk := range chunks {
		snaps, processed, outcome := r.processChunkWithRetry(ctx, batchID, i, chunk)

		// Merge exactly once per chunk; a retried chunk discards earlier
		// attempts, so (batch_id, ticker) stays unique.
		batch = append(batch, snaps...)
		report.TickersProcessed += processed
		report.ChunksProcessed++

		switch outcome {
		case chunkCancelled:
			aborted = true
		case chunkRateLimited:
			degraded = true
			r.logger.Warn("rate-limit retries exhausted, finalizing partial batch",
				"chunk", i+1,
				"chunks_total", len(chunks),
			)
		}
		if aborted || degraded {
			break
		}

		if i < len(chunks)-1 {
			if err := sleepCtx(ctx, r.cfg.ChunkPause); err != nil {
				aborted = true
				break
			}
		}
	}

	report.Snapshots = len(batch)
	r.finalize(ctx, batchID, batch, &report, aborted, degraded)
	report.Elapsed = time.Since(start)

	var err error
	if !r.cfg.DryRun && len(batch) > 0 && report.Published == 0 && report.PublishFailed > 0 {
		err = errors.New("publish failed for entire batch")
	}

	r.logger.Info("run finished",
		"batch_id", batchID,
		"status", report.Status,
		"tickers_total", report.TickersTotal,
		"tickers_processed", report.TickersProcessed,
		"snapshots", report.Snapshots,
		"published", report.Published,
		"publish_failed", report.PublishFailed,
		"chunks", report.ChunksProcessed,
		"elapsed", report.Elapsed,
	)

	return report, err
}

// processChunkWithRetry drives one chunk through its attempts. On a
// rate-limit signal the whole chunk is retried after the next backoff
// delay; once retries are exhausted the final attempt's snapshots are kept
// rather than discarded.
func (r *Runner) processChunkWithRetry(ctx context.Context, batchID uuid.UUID, idx int, chunk []string) ([]model.VolumeSnapshot, int, chunkOutcome) {
	attempts := r.cfg.MaxChunkRetries + 1

	var (
		snaps     []model.VolumeSnapshot
		processed int
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(r.cfg.RetryBackoff, attempt-1)
			r.logger.Warn("chunk rate limited, backing off",
				"chunk", idx+1,
				"attempt", attempt,
				"max_attempts", attempts,
				"delay", delay,
			)
			if err := sleepCtx(ctx, delay); err != nil {
				// An abort never retries the chunk, so keeping the last
				// attempt's snapshots cannot duplicate a ticker.
				return snaps, processed, chunkCancelled
			}
		}

		var outcome chunkOutcome
		snaps, processed, outcome = r.processChunk(ctx, batchID, chunk)
		if outcome != chunkRateLimited || attempt == attempts-1 {
			return snaps, processed, outcome
		}
	}

	// Unreachable: the loop always returns on its last attempt.
	return snaps, processed, chunkRateLimited
}

// processChunk runs one fetch+compute attempt over a chunk with bounded
// concurrency. Per-ticker failures are logged and skipped; a rate-limit
// signal stops the attempt.
func (r *Runner) processChunk(ctx context.Context, batchID uuid.UUID, chunk []string) ([]model.VolumeSnapshot, int, chunkOutcome) {
	attemptStart := r.now()

	var (
		mu          sync.Mutex
		snaps       []model.VolumeSnapshot
		processed   int
		rateLimited bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for _, ticker := range chunk {
		ticker := ticker
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			fetchedAt := r.now()
			sessions, err := r.fetcher.FetchRecentSessions(gctx, ticker)
			if err != nil {
				if marketdata.IsRateLimited(err) {
					mu.Lock()
					rateLimited = true
					mu.Unlock()
					// Cancels the group: no further fetches this attempt.
					return err
				}
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				r.logger.Warn("ticker skipped",
					"ticker", ticker,
					"err", err,
				)
				mu.Lock()
				processed++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			processed++
			mu.Unlock()

			if len(sessions) == 0 {
				r.logger.Debug("no usable history", "ticker", ticker)
				return nil
			}

			snap, ok := metric.Compute(ticker, sessions, fetchedAt)
			if !ok {
				r.logger.Debug("insufficient sessions", "ticker", ticker)
				return nil
			}
			snap.BatchID = batchID

			mu.Lock()
			snaps = append(snaps, snap)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()

	switch {
	case rateLimited:
		return snaps, processed, chunkRateLimited
	case err != nil && ctx.Err() != nil:
		return snaps, processed, chunkCancelled
	default:
		r.logger.Debug("chunk complete",
			"tickers", len(chunk),
			"snapshots", len(snaps),
			"duration", time.Since(attemptStart),
		)
		return snaps, processed, chunkOK
	}
}

// finalize publishes (or previews) the accumulated batch and stamps the
// report status. On abort the flush still happens, on a context detached
// from the cancelled run context, so completed work is not lost.
func (r *Runner) finalize(ctx context.Context, batchID uuid.UUID, batch []model.VolumeSnapshot, report *model.RunReport, aborted, degraded bool) {
	switch {
	case aborted:
		report.Status = model.StatusAborted
	case degraded:
		report.Status = model.StatusPartial
	case r.cfg.DryRun:
		report.Status = model.StatusDryRun
	default:
		report.Status = model.StatusCompleted
	}

	if len(batch) == 0 {
		r.logger.Warn("no snapshots produced", "batch_id", batchID)
		return
	}

	if r.cfg.DryRun || r.pub == nil {
		r.previewSample(batch)
		return
	}

	pubCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		pubCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		defer cancel()
	}

	result, err := r.pub.Publish(pubCtx, batchID, batch)
	report.Published = result.Written
	report.PublishFailed = result.Failed
	if err != nil {
		r.logger.Error("publish failed",
			"batch_id", batchID,
			"written", result.Written,
			"failed", result.Failed,
			"err", err,
		)
	}
}

// previewSample logs up to five snapshots as JSON instead of publishing.
func (r *Runner) previewSample(batch []model.VolumeSnapshot) {
	sample := batch
	if len(sample) > 5 {
		sample = sample[:5]
	}
	r.logger.Info("dry run enabled, skipping publish", "snapshots", len(batch))
	for _, snap := range sample {
		data, err := json.Marshal(snap)
		if err != nil {
			continue
		}
		r.logger.Info("sample snapshot", "record", string(data))
	}
}

// backoffDelay returns the i-th delay, repeating the final entry when the
// retry count outruns the sequence.
func backoffDelay(seq []time.Duration, i int) time.Duration {
	if len(seq) == 0 {
		return time.Minute
	}
	if i >= len(seq) {
		i = len(seq) - 1
	}
	return seq[i]
}

// sleepCtx sleeps for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
