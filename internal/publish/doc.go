// Package publish commits batch-tagged snapshot sets to the backing store.
//
// Two backends exist: a PostgREST-compatible REST endpoint (the managed
// store path) and a direct PostgreSQL connection. Both are best-effort
// bulk writes: rejected rows are retried at the smallest applicable scope
// and partial persistence is reported, never silent. Neither backend
// mutates or deletes prior batches; "latest" is a query-time concept.
package publish
