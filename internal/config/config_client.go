package config

import (
	"fmt"
	"time"
)

// ClientApp holds client-side application settings derived from the shared
// structured config.
type ClientApp struct {
	// HashKey signs pushed bodies with X-Payload-Hash when non-empty.
	HashKey string
	// LogLevel is the zerolog level of the client log file.
	LogLevel string
}

// ClientAdapter holds network settings used by the client transport layer.
type ClientAdapter struct {
	// HTTPAddress is the base URL of the sync server.
	HTTPAddress string
	// RequestTimeout is the default timeout for outbound client requests.
	RequestTimeout time.Duration
	// Token is the bearer token of the device user.
	Token string
	// ClientID identifies the device to the server's rate limiter.
	ClientID string
}

// ClientStorage contains the local outbox database settings.
type ClientStorage struct {
	// DSN is the SQLite file path.
	DSN string
}

// ClientWorkers contains client background worker settings.
type ClientWorkers struct {
	// SyncInterval defines how often the push/pull cycle runs.
	SyncInterval time.Duration
	// PushBatchSize is the number of outbox entries per push.
	PushBatchSize int
	// PullLimit is the page size requested from the change feed.
	PullLimit int
}

// ClientConfig is the field client's view of [StructuredConfig].
type ClientConfig struct {
	App     ClientApp
	Adapter ClientAdapter
	Storage ClientStorage
	Workers ClientWorkers
}

// GetClientConfig builds and validates the client configuration from the
// merged structured configuration.
func GetClientConfig() (*ClientConfig, error) {
	cfg, err := GetStructuredConfig()
	if err != nil {
		return nil, fmt.Errorf("error get structured config: %w", err)
	}

	clientCfg := newClientConfig(cfg)

	return clientCfg, clientCfg.validate()
}

func newClientConfig(cfg *StructuredConfig) *ClientConfig {
	pushBatch := cfg.Workers.PushBatchSize
	if pushBatch > cfg.Sync.MaxBatchSize {
		pushBatch = cfg.Sync.MaxBatchSize
	}

	return &ClientConfig{
		App: ClientApp{
			HashKey:  cfg.App.HashKey,
			LogLevel: cfg.App.LogLevel,
		},
		Adapter: ClientAdapter{
			HTTPAddress:    cfg.Adapter.HTTPAddress,
			RequestTimeout: cfg.Adapter.RequestTimeout,
			Token:          cfg.Adapter.Token,
			ClientID:       cfg.Adapter.ClientID,
		},
		Storage: ClientStorage{DSN: cfg.Storage.Local.DSN},
		Workers: ClientWorkers{
			SyncInterval:  cfg.Workers.SyncInterval,
			PushBatchSize: pushBatch,
			PullLimit:     cfg.Sync.DefaultPullLimit,
		},
	}
}
