package config

import "time"

// Documented protocol ceilings.
const (
	DefaultMaxBatchSize      = 100
	DefaultPullWindow        = 24 * time.Hour
	DefaultPullLimit         = 100
	DefaultMaxPullLimit      = 1000
	DefaultRateLimitWindow   = time.Minute
	DefaultPushPerWindow     = 100
	DefaultPullPerWindow     = 50
	DefaultResolvePerWindow  = 20
	DefaultQueryPerWindow    = 60
	DefaultRequestTimeout    = 30 * time.Second
	DefaultMaxBodyBytes      = 10 << 20
	DefaultDBDriver          = "pgx"
	DefaultDBMaxOpenConns    = 10
	DefaultTokenDuration     = 24 * time.Hour
	DefaultLogLevel          = "debug"
	DefaultClientSyncPeriod  = 5 * time.Minute
	DefaultClientPushBatch   = DefaultMaxBatchSize
	DefaultLocalDSN          = "fieldsync.db"
	DefaultAppVersion        = "dev"
	DefaultAdapterReqTimeout = 30 * time.Second
)

// defaultConfig returns the values used for every field no other source set.
// Addresses, secrets and DSNs have no defaults.
func defaultConfig() *StructuredConfig {
	return &StructuredConfig{
		App: App{
			TokenDuration: DefaultTokenDuration,
			Version:       DefaultAppVersion,
			LogLevel:      DefaultLogLevel,
		},
		Storage: Storage{
			DB: DB{
				Driver:       DefaultDBDriver,
				MaxOpenConns: DefaultDBMaxOpenConns,
			},
			Local: Local{DSN: DefaultLocalDSN},
		},
		Server: Server{
			RequestTimeout: DefaultRequestTimeout,
			MaxBodyBytes:   DefaultMaxBodyBytes,
		},
		Sync: Sync{
			MaxBatchSize:      DefaultMaxBatchSize,
			DefaultPullWindow: DefaultPullWindow,
			DefaultPullLimit:  DefaultPullLimit,
			MaxPullLimit:      DefaultMaxPullLimit,
		},
		RateLimit: RateLimit{
			Window:     DefaultRateLimitWindow,
			PushMax:    DefaultPushPerWindow,
			PullMax:    DefaultPullPerWindow,
			ResolveMax: DefaultResolvePerWindow,
			QueryMax:   DefaultQueryPerWindow,
		},
		Adapter: Adapter{
			RequestTimeout: DefaultAdapterReqTimeout,
		},
		Workers: Workers{
			SyncInterval:  DefaultClientSyncPeriod,
			PushBatchSize: DefaultClientPushBatch,
		},
	}
}
