// Package model defines shared data types for the volume snapshot pipeline.
//
// Conventions:
//   - Volumes: int64 share counts, never fractional
//   - Trade dates: time.Time at UTC midnight of the session date
//   - Metrics: decimal, truncated to 6 fractional digits (storage precision)
//   - IDs: string for tickers, uuid.UUID for batch IDs
package model
