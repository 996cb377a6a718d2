package marketdata

import (
	"context"
	"log/slog"
	"time"

	"github.com/volumewatch/volume-data/internal/model"
)

// HistoryProvider is the capability the tier strategy needs from a data
// source. *Client implements it; tests supply fakes.
type HistoryProvider interface {
	FetchHistory(ctx context.Context, ticker string, win WindowSpec) ([]model.Session, error)
}

// Windows holds the fallback tier sizes, in calendar days.
type Windows struct {
	ShortDays int // Tier 1: short relative window
	RangeDays int // Tier 2: explicit start/end range reaching back this far
	LongDays  int // Tier 3: long relative window
}

// DefaultWindows returns the standard tier sizes.
func DefaultWindows() Windows {
	return Windows{ShortDays: 3, RangeDays: 7, LongDays: 5}
}

// SessionFetcher applies the tiered window fallback over a HistoryProvider.
//
// Exchange holidays and weekends can make the shortest window return fewer
// than two sessions; each successive tier widens the window, trading a
// larger payload for completeness. The first tier yielding at least two
// positive-volume sessions wins.
type SessionFetcher struct {
	provider HistoryProvider
	windows  Windows
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessionFetcher creates a SessionFetcher.
func NewSessionFetcher(provider HistoryProvider, windows Windows, logger *slog.Logger) *SessionFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionFetcher{
		provider: provider,
		windows:  windows,
		logger:   logger,
		now:      time.Now,
	}
}

type tier struct {
	label  string
	window WindowSpec
}

func (f *SessionFetcher) tiers() []tier {
	now := f.now().UTC()
	return []tier{
		{"short-window", RelativeWindow(f.windows.ShortDays)},
		{"start-end", DateRangeWindow(now.AddDate(0, 0, -f.windows.RangeDays), now.AddDate(0, 0, 1))},
		{"long-window", RelativeWindow(f.windows.LongDays)},
	}
}

// FetchRecentSessions returns the most recent daily sessions for ticker,
// or (nil, nil) when no tier can resolve two positive-volume sessions.
// Rate-limit signals propagate immediately; other tier failures fall
// through to the next tier.
func (f *SessionFetcher) FetchRecentSessions(ctx context.Context, ticker string) ([]model.Session, error) {
	var lastErr error

	for _, t := range f.tiers() {
		sessions, err := f.provider.FetchHistory(ctx, ticker, t.window)
		if err != nil {
			if IsRateLimited(err) || ctx.Err() != nil {
				return nil, err
			}
			f.logger.Warn("history fetch failed",
				"ticker", ticker,
				"tier", t.label,
				"err", err,
			)
			lastErr = err
			continue
		}

		if hasSufficientVolume(sessions) {
			if t.label != "short-window" {
				f.logger.Debug("fetched via fallback tier",
					"ticker", ticker,
					"tier", t.label,
				)
			}
			return sessions, nil
		}

		f.logger.Debug("insufficient data, trying next tier",
			"ticker", ticker,
			"tier", t.label,
			"sessions", len(sessions),
		)
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

// hasSufficientVolume reports whether at least two sessions carry positive
// volume.
func hasSufficientVolume(sessions []model.Session) bool {
	count := 0
	for _, s := range sessions {
		if s.Volume > 0 {
			count++
			if count >= 2 {
				return true
			}
		}
	}
	return false
}
