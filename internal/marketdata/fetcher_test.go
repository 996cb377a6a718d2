package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/volumewatch/volume-data/internal/model"
)

// fakeProvider returns scripted results per tier, keyed by window shape.
type fakeProvider struct {
	shortResult []model.Session
	shortErr    error
	rangeResult []model.Session
	rangeErr    error
	longResult  []model.Session
	longErr     error

	calls []string
}

func (f *fakeProvider) FetchHistory(ctx context.Context, ticker string, win WindowSpec) ([]model.Session, error) {
	switch {
	case win.Range == "3d":
		f.calls = append(f.calls, "short")
		return f.shortResult, f.shortErr
	case win.Range == "":
		f.calls = append(f.calls, "range")
		return f.rangeResult, f.rangeErr
	default:
		f.calls = append(f.calls, "long")
		return f.longResult, f.longErr
	}
}

func sessions(volumes ...int64) []model.Session {
	out := make([]model.Session, len(volumes))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range volumes {
		out[i] = model.Session{Date: base.AddDate(0, 0, i), Volume: v}
	}
	return out
}

func newFetcher(p HistoryProvider) *SessionFetcher {
	return NewSessionFetcher(p, DefaultWindows(), nil)
}

func TestFetchRecentSessionsShortWindowWins(t *testing.T) {
	p := &fakeProvider{shortResult: sessions(100, 250)}

	got, err := newFetcher(p).FetchRecentSessions(context.Background(), "AAA")
	if err != nil {
		t.Fatalf("FetchRecentSessions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(got))
	}
	if len(p.calls) != 1 || p.calls[0] != "short" {
		t.Errorf("calls = %v, want [short]", p.calls)
	}
}

func TestFetchRecentSessionsFallsBackToDateRange(t *testing.T) {
	// Short window yields one session; the start/end range resolves two.
	// The range result must win, and the long window must not be tried.
	p := &fakeProvider{
		shortResult: sessions(100),
		rangeResult: sessions(100, 250),
	}

	got, err := newFetcher(p).FetchRecentSessions(context.Background(), "AAA")
	if err != nil {
		t.Fatalf("FetchRecentSessions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(got))
	}
	wantCalls := []string{"short", "range"}
	if len(p.calls) != 2 || p.calls[0] != wantCalls[0] || p.calls[1] != wantCalls[1] {
		t.Errorf("calls = %v, want %v", p.calls, wantCalls)
	}
}

func TestFetchRecentSessionsUsesLongWindowLast(t *testing.T) {
	p := &fakeProvider{
		shortResult: sessions(100),
		rangeResult: sessions(0, 100), // Only one positive-volume session
		longResult:  sessions(100, 250, 300),
	}

	got, err := newFetcher(p).FetchRecentSessions(context.Background(), "AAA")
	if err != nil {
		t.Fatalf("FetchRecentSessions failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(sessions) = %d, want 3", len(got))
	}
	if len(p.calls) != 3 {
		t.Errorf("calls = %v, want all three tiers", p.calls)
	}
}

func TestFetchRecentSessionsNoData(t *testing.T) {
	p := &fakeProvider{}

	got, err := newFetcher(p).FetchRecentSessions(context.Background(), "AAA")
	if err != nil {
		t.Fatalf("FetchRecentSessions failed: %v", err)
	}
	if got != nil {
		t.Errorf("sessions = %v, want nil (no data)", got)
	}
}

func TestFetchRecentSessionsRateLimitPropagates(t *testing.T) {
	p := &fakeProvider{shortErr: &RateLimitError{Ticker: "AAA"}}

	_, err := newFetcher(p).FetchRecentSessions(context.Background(), "AAA")
	if !IsRateLimited(err) {
		t.Fatalf("IsRateLimited(%v) = false, want true", err)
	}
	// The throttle must not burn further tiers.
	if len(p.calls) != 1 {
		t.Errorf("calls = %v, want [short]", p.calls)
	}
}

func TestFetchRecentSessionsTierErrorFallsThrough(t *testing.T) {
	p := &fakeProvider{
		shortErr:    errors.New("boom"),
		rangeResult: sessions(100, 250),
	}

	got, err := newFetcher(p).FetchRecentSessions(context.Background(), "AAA")
	if err != nil {
		t.Fatalf("FetchRecentSessions failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(sessions) = %d, want 2", len(got))
	}
}

func TestFetchRecentSessionsAllTiersFail(t *testing.T) {
	p := &fakeProvider{
		shortErr: errors.New("short boom"),
		rangeErr: errors.New("range boom"),
		longErr:  errors.New("long boom"),
	}

	_, err := newFetcher(p).FetchRecentSessions(context.Background(), "AAA")
	if err == nil {
		t.Fatal("FetchRecentSessions expected error, got nil")
	}
}
