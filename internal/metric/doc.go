// Package metric derives volume-spike fields from raw session history.
//
// Compute is pure: the same observation always yields the same snapshot,
// so the orchestrator can retry fetches freely without drift.
package metric
