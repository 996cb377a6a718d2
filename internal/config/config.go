package config

// SnapshotterConfig is the root configuration for a snapshotter run.
type SnapshotterConfig struct {
	Instance InstanceConfig `yaml:"instance"`
	Source   SourceConfig   `yaml:"source"`
	Store    StoreConfig    `yaml:"store"`
	Run      RunConfig      `yaml:"run"`
}

// InstanceConfig identifies this snapshotter (shows up in logs only).
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// SourceConfig holds market-data source settings.
type SourceConfig struct {
	BaseURL        string   `yaml:"base_url"`
	Timeout        Duration `yaml:"timeout"`
	MaxRetries     int      `yaml:"max_retries"`      // Per-tier transient retries
	RequestsPerSec float64  `yaml:"requests_per_sec"` // Shared pacing budget

	// Fetch window tiers, in calendar days. The short window is tried
	// first, the explicit start/end range second, the long window last.
	ShortWindowDays int `yaml:"short_window_days"`
	RangeWindowDays int `yaml:"range_window_days"`
	LongWindowDays  int `yaml:"long_window_days"`
}

// StoreBackend selects the snapshot store implementation.
type StoreBackend string

const (
	BackendREST     StoreBackend = "rest"
	BackendPostgres StoreBackend = "postgres"
)

// StoreConfig holds snapshot store settings.
type StoreConfig struct {
	Backend  StoreBackend    `yaml:"backend"`
	REST     RESTStoreConfig `yaml:"rest"`
	Postgres DBConfig        `yaml:"postgres"`
}

// RESTStoreConfig holds the PostgREST-compatible store endpoint.
type RESTStoreConfig struct {
	URL             string   `yaml:"url"`
	ServiceRoleKey  string   `yaml:"service_role_key"`
	Table           string   `yaml:"table"`
	Timeout         Duration `yaml:"timeout"`
	UploadChunkSize int      `yaml:"upload_chunk_size"`
}

// DBConfig holds a direct PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RunConfig holds batch orchestration settings.
type RunConfig struct {
	TickersFile     string     `yaml:"tickers_file"`
	ChunkSize       int        `yaml:"chunk_size"`
	ChunkPause      Duration   `yaml:"chunk_pause"`
	RetryBackoff    []Duration `yaml:"retry_backoff"`     // Chunk-level backoff sequence
	MaxChunkRetries int        `yaml:"max_chunk_retries"` // Retries after the initial attempt
	Workers         int        `yaml:"workers"`           // Per-chunk fetch concurrency (1 = sequential)
	Limit           int        `yaml:"limit"`             // Cap on total tickers (0 = all)
	DryRun          bool       `yaml:"dry_run"`
}
