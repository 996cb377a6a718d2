package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *SnapshotterConfig) Validate() error {
	if c.Source.BaseURL == "" {
		return errors.New("source.base_url is required")
	}
	if c.Source.RequestsPerSec <= 0 {
		return errors.New("source.requests_per_sec must be > 0")
	}
	if c.Source.ShortWindowDays < 1 || c.Source.RangeWindowDays < 1 || c.Source.LongWindowDays < 1 {
		return errors.New("source window sizes must be >= 1 day")
	}

	switch c.Store.Backend {
	case BackendREST:
		if c.Store.REST.URL == "" {
			return errors.New("store.rest.url is required")
		}
		if c.Store.REST.ServiceRoleKey == "" {
			return errors.New("store.rest.service_role_key is required")
		}
		if c.Store.REST.UploadChunkSize < 1 {
			return errors.New("store.rest.upload_chunk_size must be >= 1")
		}
	case BackendPostgres:
		if err := c.Store.Postgres.validate("store.postgres"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendREST, BackendPostgres, c.Store.Backend)
	}

	if c.Run.TickersFile == "" {
		return errors.New("run.tickers_file is required")
	}
	if c.Run.ChunkSize < 1 {
		return errors.New("run.chunk_size must be >= 1")
	}
	if c.Run.Workers < 1 {
		return errors.New("run.workers must be >= 1")
	}
	if c.Run.MaxChunkRetries < 0 {
		return errors.New("run.max_chunk_retries must be >= 0")
	}
	if c.Run.Limit < 0 {
		return errors.New("run.limit must be >= 0")
	}
	for i, d := range c.Run.RetryBackoff {
		if d <= 0 {
			return fmt.Errorf("run.retry_backoff[%d] must be > 0", i)
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
