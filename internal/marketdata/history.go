package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/volumewatch/volume-data/internal/model"
)

// WindowSpec describes one fetch window. Either Range is set (a relative
// window such as "3d") or Start/End bound an explicit date range.
type WindowSpec struct {
	Range string
	Start time.Time
	End   time.Time
}

// RelativeWindow builds a relative WindowSpec covering the last n days.
func RelativeWindow(days int) WindowSpec {
	return WindowSpec{Range: strconv.Itoa(days) + "d"}
}

// DateRangeWindow builds an explicit start/end WindowSpec.
func DateRangeWindow(start, end time.Time) WindowSpec {
	return WindowSpec{Start: start, End: end}
}

// chartResponse mirrors the source's chart envelope.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Volume []*int64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// FetchHistory returns the daily volume sessions the source has for ticker
// within the given window, ordered by date ascending. A ticker the source
// does not know, or a window with no sessions, returns (nil, nil).
func (c *Client) FetchHistory(ctx context.Context, ticker string, win WindowSpec) ([]model.Session, error) {
	query := url.Values{}
	query.Set("interval", "1d")
	query.Set("events", "")
	if win.Range != "" {
		query.Set("range", win.Range)
	} else {
		query.Set("period1", strconv.FormatInt(win.Start.Unix(), 10))
		query.Set("period2", strconv.FormatInt(win.End.Unix(), 10))
	}

	body, err := c.doWithRetry(ctx, ticker, "/v8/finance/chart/"+url.PathEscape(ticker), query)
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal chart response: %w", err)
	}

	if resp.Chart.Error != nil {
		// "Not Found" and friends are data-availability outcomes.
		c.logger.Debug("source reported no data",
			"ticker", ticker,
			"code", resp.Chart.Error.Code,
		)
		return nil, nil
	}
	if len(resp.Chart.Result) == 0 {
		return nil, nil
	}

	return extractSessions(resp.Chart.Result[0]), nil
}

// extractSessions converts a chart result into dated sessions, dropping
// entries with missing volume and collapsing duplicate dates onto the
// later observation.
func extractSessions(res chartResult) []model.Session {
	if len(res.Indicators.Quote) == 0 {
		return nil
	}
	volumes := res.Indicators.Quote[0].Volume

	byDate := make(map[time.Time]int64)
	for i, ts := range res.Timestamp {
		if i >= len(volumes) || volumes[i] == nil {
			continue
		}
		day := toSessionDate(time.Unix(ts, 0))
		byDate[day] = *volumes[i]
	}

	sessions := make([]model.Session, 0, len(byDate))
	for day, vol := range byDate {
		sessions = append(sessions, model.Session{Date: day, Volume: vol})
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Date.Before(sessions[j].Date)
	})
	return sessions
}

// toSessionDate truncates an instant to its UTC session date.
func toSessionDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
