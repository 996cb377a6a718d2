package metric

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/volumewatch/volume-data/internal/model"
)

// storagePrecision is the fixed decimal precision of the store columns.
// Values are truncated, not rounded, so downstream sort order is preserved.
const storagePrecision = 6

var spikeThreshold = decimal.NewFromInt(2)

// Compute builds snapshot fields from a ticker's session history and the
// per-ticker fetch instant. It returns ok=false when fewer than two
// distinct sessions carry positive volume; such tickers are excluded from
// the batch, not errors.
//
// Sessions are selected by date ordering, never fetch order. Duplicate
// dates collapse onto the later observation.
func Compute(ticker string, sessions []model.Session, fetchedAt time.Time) (model.VolumeSnapshot, bool) {
	valid := selectValid(sessions)
	if len(valid) < 2 {
		return model.VolumeSnapshot{}, false
	}

	latest := valid[len(valid)-1]
	previous := valid[len(valid)-2]

	snap := model.VolumeSnapshot{
		Ticker:            ticker,
		LastTradeDate:     latest.Date,
		PreviousTradeDate: previous.Date,
		LatestVolume:      latest.Volume,
		PreviousVolume:    previous.Volume,
		FetchedAtUTC:      fetchedAt.UTC(),
		FetchedAtKST:      fetchedAt.In(model.KSTOffset),
	}

	// Eligibility guarantees previous.Volume > 0; the nil branch is a
	// defensive null, not an error path.
	if previous.Volume > 0 {
		latestDec := decimal.NewFromInt(latest.Volume)
		previousDec := decimal.NewFromInt(previous.Volume)

		ratio := latestDec.Div(previousDec).Truncate(storagePrecision)
		pct := latestDec.Sub(previousDec).
			Div(previousDec).
			Mul(decimal.NewFromInt(100)).
			Truncate(storagePrecision)

		snap.VolumeRatio = &ratio
		snap.VolumeChangePct = &pct
		snap.IsSpike = ratio.GreaterThanOrEqual(spikeThreshold)
	}

	return snap, true
}

// selectValid filters to positive-volume sessions, collapses duplicate
// dates onto the last observation, and sorts by date ascending.
func selectValid(sessions []model.Session) []model.Session {
	byDate := make(map[time.Time]int64, len(sessions))
	for _, s := range sessions {
		if s.Volume <= 0 {
			continue
		}
		byDate[s.Date.UTC()] = s.Volume
	}

	valid := make([]model.Session, 0, len(byDate))
	for date, volume := range byDate {
		valid = append(valid, model.Session{Date: date, Volume: volume})
	}
	sort.Slice(valid, func(i, j int) bool {
		return valid[i].Date.Before(valid[j].Date)
	})
	return valid
}
