// Package database provides the PostgreSQL connection pool for the direct
// store backend. The managed REST backend does not use it.
package database
