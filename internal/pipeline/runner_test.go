package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/volumewatch/volume-data/internal/marketdata"
	"github.com/volumewatch/volume-data/internal/model"
	"github.com/volumewatch/volume-data/internal/publish"
)

// fakeFetcher serves canned session data and scripted failures.
type fakeFetcher struct {
	mu          sync.Mutex
	data        map[string][]model.Session
	rateLimited map[string]bool
	failing     map[string]error
	calls       map[string]int
	onFetch     func(ticker string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		data:        make(map[string][]model.Session),
		rateLimited: make(map[string]bool),
		failing:     make(map[string]error),
		calls:       make(map[string]int),
	}
}

func (f *fakeFetcher) FetchRecentSessions(ctx context.Context, ticker string) ([]model.Session, error) {
	f.mu.Lock()
	f.calls[ticker]++
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(ticker)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rateLimited[ticker] {
		return nil, &marketdata.RateLimitError{Ticker: ticker}
	}
	if err := f.failing[ticker]; err != nil {
		return nil, err
	}
	return f.data[ticker], nil
}

func (f *fakeFetcher) callCount(ticker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ticker]
}

// fakePublisher records everything it is asked to persist.
type fakePublisher struct {
	mu       sync.Mutex
	batches  []uuid.UUID
	received []model.VolumeSnapshot
	failAll  bool
}

func (p *fakePublisher) Publish(ctx context.Context, batchID uuid.UUID, snapshots []model.VolumeSnapshot) (publish.PublishResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, batchID)
	if p.failAll {
		return publish.PublishResult{Failed: len(snapshots)}, errors.New("store down")
	}
	p.received = append(p.received, snapshots...)
	return publish.PublishResult{Written: len(snapshots)}, nil
}

func (p *fakePublisher) tickers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.received))
	for i, s := range p.received {
		out[i] = s.Ticker
	}
	return out
}

func twoSessions(prev, latest int64) []model.Session {
	return []model.Session{
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Volume: prev},
		{Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Volume: latest},
	}
}

func testConfig() Config {
	return Config{
		ChunkSize:       2,
		ChunkPause:      time.Millisecond,
		RetryBackoff:    []time.Duration{time.Millisecond, 2 * time.Millisecond},
		MaxChunkRetries: 2,
		Workers:         1,
	}
}

func TestRunnerCompletes(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.data["AAA"] = twoSessions(100, 250)
	fetcher.data["BBB"] = twoSessions(100, 100)
	fetcher.data["CCC"] = []model.Session{{Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Volume: 500}} // One session: ineligible
	fetcher.data["DDD"] = twoSessions(200, 400)

	pub := &fakePublisher{}
	r := NewRunner(testConfig(), fetcher, pub, nil)

	report, err := r.Run(context.Background(), []string{"AAA", "BBB", "CCC", "DDD"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want %q", report.Status, model.StatusCompleted)
	}
	if report.TickersTotal != 4 || report.TickersProcessed != 4 {
		t.Errorf("TickersTotal/Processed = %d/%d, want 4/4", report.TickersTotal, report.TickersProcessed)
	}
	if report.Snapshots != 3 || report.Published != 3 {
		t.Errorf("Snapshots/Published = %d/%d, want 3/3", report.Snapshots, report.Published)
	}
	if report.ChunksProcessed != 2 || report.ChunksTotal != 2 {
		t.Errorf("Chunks = %d/%d, want 2/2", report.ChunksProcessed, report.ChunksTotal)
	}

	// The ineligible ticker contributes no record.
	for _, ticker := range pub.tickers() {
		if ticker == "CCC" {
			t.Error("ineligible ticker CCC was published")
		}
	}

	// Every record carries the run's batch ID, and the batch ID appears once.
	if len(pub.batches) != 1 || pub.batches[0] != report.BatchID {
		t.Errorf("publisher batches = %v, want [%v]", pub.batches, report.BatchID)
	}
	for _, s := range pub.received {
		if s.BatchID != report.BatchID {
			t.Errorf("snapshot batch ID = %v, want %v", s.BatchID, report.BatchID)
		}
	}
}

func TestRunnerNoDuplicateTickersPerBatch(t *testing.T) {
	fetcher := newFakeFetcher()
	for _, ticker := range []string{"AAA", "BBB", "CCC", "DDD", "EEE"} {
		fetcher.data[ticker] = twoSessions(100, 300)
	}

	pub := &fakePublisher{}
	r := NewRunner(testConfig(), fetcher, pub, nil)

	report, err := r.Run(context.Background(), []string{"AAA", "BBB", "CCC", "DDD", "EEE"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Snapshots != 5 {
		t.Fatalf("Snapshots = %d, want 5", report.Snapshots)
	}

	seen := make(map[string]int)
	for _, ticker := range pub.tickers() {
		seen[ticker]++
	}
	for ticker, n := range seen {
		if n != 1 {
			t.Errorf("ticker %s published %d times, want 1", ticker, n)
		}
	}
}

func TestRunnerPartialOnRateLimitExhaustion(t *testing.T) {
	// Three chunks of two. The second ticker of chunk 2 rate-limits on
	// every attempt, so the run must finalize with chunk 1 (and the
	// surviving part of chunk 2's final attempt) and never touch chunk 3.
	fetcher := newFakeFetcher()
	fetcher.data["AAA"] = twoSessions(100, 250)
	fetcher.data["BBB"] = twoSessions(100, 150)
	fetcher.data["CCC"] = twoSessions(100, 300)
	fetcher.rateLimited["DDD"] = true
	fetcher.data["EEE"] = twoSessions(100, 500)
	fetcher.data["FFF"] = twoSessions(100, 500)

	pub := &fakePublisher{}
	cfg := testConfig()
	r := NewRunner(cfg, fetcher, pub, nil)

	report, err := r.Run(context.Background(), []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Status != model.StatusPartial {
		t.Errorf("Status = %q, want %q", report.Status, model.StatusPartial)
	}

	// Initial attempt plus MaxChunkRetries retries.
	if got := fetcher.callCount("DDD"); got != cfg.MaxChunkRetries+1 {
		t.Errorf("DDD fetch attempts = %d, want %d", got, cfg.MaxChunkRetries+1)
	}

	// Chunk 3 was never fetched.
	if fetcher.callCount("EEE") != 0 || fetcher.callCount("FFF") != 0 {
		t.Error("chunk 3 tickers were fetched after retry exhaustion")
	}

	// Everything gathered before the exhaustion was still committed, and
	// the retried chunk did not duplicate its surviving ticker.
	seen := make(map[string]int)
	for _, ticker := range pub.tickers() {
		seen[ticker]++
	}
	if seen["AAA"] != 1 || seen["BBB"] != 1 {
		t.Errorf("chunk 1 snapshots published = %v, want AAA and BBB once each", seen)
	}
	if seen["CCC"] != 1 {
		t.Errorf("CCC published %d times, want exactly 1 (final attempt only)", seen["CCC"])
	}
	if seen["EEE"] != 0 || seen["FFF"] != 0 {
		t.Errorf("chunk 3 tickers published: %v", seen)
	}
}

func TestRunnerSkipsFailingTickers(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.data["AAA"] = twoSessions(100, 250)
	fetcher.failing["BBB"] = errors.New("connection reset")

	pub := &fakePublisher{}
	r := NewRunner(testConfig(), fetcher, pub, nil)

	report, err := r.Run(context.Background(), []string{"AAA", "BBB"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want %q", report.Status, model.StatusCompleted)
	}
	if report.Snapshots != 1 {
		t.Errorf("Snapshots = %d, want 1", report.Snapshots)
	}
	if got := pub.tickers(); len(got) != 1 || got[0] != "AAA" {
		t.Errorf("published tickers = %v, want [AAA]", got)
	}
}

func TestRunnerDryRunSkipsPublish(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.data["AAA"] = twoSessions(100, 250)

	pub := &fakePublisher{}
	cfg := testConfig()
	cfg.DryRun = true
	r := NewRunner(cfg, fetcher, pub, nil)

	report, err := r.Run(context.Background(), []string{"AAA"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Status != model.StatusDryRun {
		t.Errorf("Status = %q, want %q", report.Status, model.StatusDryRun)
	}
	if report.Snapshots != 1 {
		t.Errorf("Snapshots = %d, want 1", report.Snapshots)
	}
	if len(pub.batches) != 0 {
		t.Errorf("publisher was called %d times during dry run", len(pub.batches))
	}
}

func TestRunnerLimitCapsUniverse(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.data["AAA"] = twoSessions(100, 250)
	fetcher.data["BBB"] = twoSessions(100, 250)

	pub := &fakePublisher{}
	cfg := testConfig()
	cfg.Limit = 2
	r := NewRunner(cfg, fetcher, pub, nil)

	report, err := r.Run(context.Background(), []string{"AAA", "BBB", "CCC", "DDD"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.TickersTotal != 2 {
		t.Errorf("TickersTotal = %d, want 2", report.TickersTotal)
	}
	if fetcher.callCount("CCC") != 0 || fetcher.callCount("DDD") != 0 {
		t.Error("tickers beyond the limit were fetched")
	}
}

func TestRunnerAbortFlushesCompletedWork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fetcher := newFakeFetcher()
	fetcher.data["AAA"] = twoSessions(100, 250)
	fetcher.data["BBB"] = twoSessions(100, 150)
	fetcher.data["CCC"] = twoSessions(100, 300)
	fetcher.onFetch = func(ticker string) {
		// Simulate an external abort partway through chunk 2.
		if ticker == "DDD" {
			cancel()
		}
	}

	pub := &fakePublisher{}
	r := NewRunner(testConfig(), fetcher, pub, nil)

	report, err := r.Run(ctx, []string{"AAA", "BBB", "CCC", "DDD"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Status != model.StatusAborted {
		t.Errorf("Status = %q, want %q", report.Status, model.StatusAborted)
	}

	// Chunk 1 and the completed part of chunk 2 were flushed.
	seen := make(map[string]int)
	for _, ticker := range pub.tickers() {
		seen[ticker]++
	}
	if seen["AAA"] != 1 || seen["BBB"] != 1 {
		t.Errorf("completed chunk 1 work lost on abort: %v", seen)
	}
	if seen["CCC"] != 1 {
		t.Errorf("completed chunk 2 work lost on abort: %v", seen)
	}
}

func TestRunnerAbortDuringBackoffFlushesCompletedWork(t *testing.T) {
	// AAA's snapshot is computed on the first attempt before BBB trips the
	// rate limit; the abort then lands during the backoff sleep. The
	// attempt's snapshots must still be flushed.
	ctx, cancel := context.WithCancel(context.Background())

	fetcher := newFakeFetcher()
	fetcher.data["AAA"] = twoSessions(100, 250)
	fetcher.rateLimited["BBB"] = true
	fetcher.onFetch = func(ticker string) {
		if ticker == "BBB" {
			time.AfterFunc(10*time.Millisecond, cancel)
		}
	}

	pub := &fakePublisher{}
	cfg := testConfig()
	cfg.RetryBackoff = []time.Duration{5 * time.Second}
	r := NewRunner(cfg, fetcher, pub, nil)

	report, err := r.Run(ctx, []string{"AAA", "BBB"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Status != model.StatusAborted {
		t.Errorf("Status = %q, want %q", report.Status, model.StatusAborted)
	}
	if report.Snapshots != 1 {
		t.Errorf("Snapshots = %d, want 1", report.Snapshots)
	}
	if got := pub.tickers(); len(got) != 1 || got[0] != "AAA" {
		t.Errorf("published tickers = %v, want [AAA]", got)
	}
}

func TestRunnerReportsTotalPublishFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.data["AAA"] = twoSessions(100, 250)

	pub := &fakePublisher{failAll: true}
	r := NewRunner(testConfig(), fetcher, pub, nil)

	report, err := r.Run(context.Background(), []string{"AAA"})
	if err == nil {
		t.Fatal("Run expected error when the store rejects everything, got nil")
	}
	if report.Published != 0 || report.PublishFailed != 1 {
		t.Errorf("Published/PublishFailed = %d/%d, want 0/1", report.Published, report.PublishFailed)
	}
}

func TestBackoffDelay(t *testing.T) {
	seq := []time.Duration{5 * time.Minute, 10 * time.Minute, 20 * time.Minute}

	tests := []struct {
		i    int
		want time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 10 * time.Minute},
		{2, 20 * time.Minute},
		{3, 20 * time.Minute}, // Last entry repeats
	}
	for _, tt := range tests {
		if got := backoffDelay(seq, tt.i); got != tt.want {
			t.Errorf("backoffDelay(seq, %d) = %v, want %v", tt.i, got, tt.want)
		}
	}

	if got := backoffDelay(nil, 0); got != time.Minute {
		t.Errorf("backoffDelay(nil, 0) = %v, want 1m", got)
	}
}
