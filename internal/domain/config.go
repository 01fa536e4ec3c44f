package domain

import "time"

// Config holds the complete Prism configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Profile determines the infrastructure the service wires up
	Profile Profile `json:"profile"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Pricing behaviour
	Pricing PricingConfig `json:"pricing"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// PricingConfig holds tunables of the resolution pipeline.
type PricingConfig struct {
	// DecreasePolicy selects the winner when only decreases compete for a
	// non-stackable slot: "smallest" keeps the signed ordering (the
	// smaller discount wins), "largest" prefers the deeper discount.
	DecreasePolicy string `json:"decreasePolicy"`

	// DefaultCurrency is used when a product does not specify one.
	DefaultCurrency string `json:"defaultCurrency"`

	// SelectionSignalPriority is the priority assigned to transient
	// adjustments derived from explicit selection pricing keys.
	SelectionSignalPriority int `json:"selectionSignalPriority"`

	// RateLimitPerMinute bounds pricing requests per client; 0 disables.
	RateLimitPerMinute int `json:"rateLimitPerMinute"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Profile represents the deployment profile.
type Profile string

const (
	// ProfileStandalone runs on SQLite + in-process LRU + channel bus.
	ProfileStandalone Profile = "standalone"

	// ProfileCluster runs on PostgreSQL + Redis + NATS.
	ProfileCluster Profile = "cluster"
)

// DefaultConfig returns a standalone configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Profile: ProfileStandalone,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./prism.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			SnapshotTTL:  30 * time.Second,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Pricing: PricingConfig{
			DecreasePolicy:          "smallest",
			DefaultCurrency:         "INR",
			SelectionSignalPriority: 100,
			RateLimitPerMinute:      0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "prism",
		},
	}
}

// ClusterConfig returns a configuration for clustered deployments.
func ClusterConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = ProfileCluster
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "prism",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		SnapshotTTL:    30 * time.Second,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
