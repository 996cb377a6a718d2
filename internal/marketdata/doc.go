// Package marketdata fetches recent daily volume history for one ticker at
// a time from a Yahoo-chart-compatible REST source.
//
// The client distinguishes three outcomes:
//   - sessions: at least the raw history the source returned
//   - rate limited: a typed signal the orchestrator handles with backoff
//   - no data: a data-availability outcome, not an error
//
// SessionFetcher layers the tiered window fallback (short window, explicit
// start/end range, long window) on top of any HistoryProvider, so the
// strategy is testable without network access.
package marketdata
