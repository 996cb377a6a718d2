package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultSourceURL       = "https://query1.finance.yahoo.com"
	DefaultSourceTimeout   = 30 * time.Second
	DefaultSourceRetries   = 3
	DefaultRequestsPerSec  = 5.0
	DefaultShortWindowDays = 3
	DefaultRangeWindowDays = 7
	DefaultLongWindowDays  = 5

	DefaultStoreTable      = "volume_snapshots"
	DefaultStoreTimeout    = 30 * time.Second
	DefaultUploadChunkSize = 500

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 10
	DefaultMinConns  = 2

	DefaultTickersFile     = "us_tickers.csv"
	DefaultChunkSize       = 200
	DefaultChunkPause      = 10 * time.Second
	DefaultMaxChunkRetries = 3
	DefaultWorkers         = 1
)

// DefaultRetryBackoff is the chunk-level backoff sequence applied when the
// source reports rate limiting.
func DefaultRetryBackoff() []Duration {
	return []Duration{
		Duration(5 * time.Minute),
		Duration(10 * time.Minute),
		Duration(20 * time.Minute),
	}
}

func (c *SnapshotterConfig) applyDefaults() {
	// Source defaults
	if c.Source.BaseURL == "" {
		c.Source.BaseURL = DefaultSourceURL
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = Duration(DefaultSourceTimeout)
	}
	if c.Source.MaxRetries == 0 {
		c.Source.MaxRetries = DefaultSourceRetries
	}
	if c.Source.RequestsPerSec == 0 {
		c.Source.RequestsPerSec = DefaultRequestsPerSec
	}
	if c.Source.ShortWindowDays == 0 {
		c.Source.ShortWindowDays = DefaultShortWindowDays
	}
	if c.Source.RangeWindowDays == 0 {
		c.Source.RangeWindowDays = DefaultRangeWindowDays
	}
	if c.Source.LongWindowDays == 0 {
		c.Source.LongWindowDays = DefaultLongWindowDays
	}

	// Store defaults
	if c.Store.Backend == "" {
		c.Store.Backend = BackendREST
	}
	if c.Store.REST.Table == "" {
		c.Store.REST.Table = DefaultStoreTable
	}
	if c.Store.REST.Timeout == 0 {
		c.Store.REST.Timeout = Duration(DefaultStoreTimeout)
	}
	if c.Store.REST.UploadChunkSize == 0 {
		c.Store.REST.UploadChunkSize = DefaultUploadChunkSize
	}
	applyDBDefaults(&c.Store.Postgres)

	// Run defaults
	if c.Run.TickersFile == "" {
		c.Run.TickersFile = DefaultTickersFile
	}
	if c.Run.ChunkSize == 0 {
		c.Run.ChunkSize = DefaultChunkSize
	}
	if c.Run.ChunkPause == 0 {
		c.Run.ChunkPause = Duration(DefaultChunkPause)
	}
	if c.Run.RetryBackoff == nil {
		c.Run.RetryBackoff = DefaultRetryBackoff()
	}
	if c.Run.MaxChunkRetries == 0 {
		c.Run.MaxChunkRetries = DefaultMaxChunkRetries
	}
	if c.Run.Workers == 0 {
		c.Run.Workers = DefaultWorkers
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
