// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"time"
)

// StructuredConfig is the top-level configuration of the sync server, the
// field client and the admin CLI. It is populated by merging environment
// variables, command-line flags, an optional JSON file and built-in defaults.
//
// Struct tags:
//   - envPrefix: prefix applied to all nested env tag lookups (caarlos0/env).
//   - env      : direct environment variable name for scalar fields.
type StructuredConfig struct {
	// App holds token parameters, the integrity hash key, the application
	// version and the log level.
	App App `envPrefix:"APP_"`

	// Storage holds the server database and the field client's local store.
	Storage Storage `envPrefix:"STORAGE_"`

	// Server holds the inbound HTTP transport settings.
	Server Server `envPrefix:"SERVER_"`

	// Sync holds the batch, feed and auto-resolution parameters.
	Sync Sync `envPrefix:"SYNC_"`

	// RateLimit holds the per-endpoint ceilings and the optional shared store.
	RateLimit RateLimit `envPrefix:"RATE_LIMIT_"`

	// Adapter holds the field client's connection to the sync server.
	Adapter Adapter `envPrefix:"ADAPTER_"`

	// Workers holds background job settings of the field client.
	Workers Workers `envPrefix:"WORKERS_"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// Populated via the CONFIG environment variable or the -c / -config flag.
	JSONFilePath string `env:"CONFIG"`
}

// App holds application-level configuration values.
type App struct {
	// TokenSignKey is the secret used to verify (and, in syncctl, sign) JWTs.
	// Env: APP_TOKEN_SIGN_KEY
	TokenSignKey string `env:"TOKEN_SIGN_KEY"`

	// TokenIssuer is the expected "iss" claim.
	// Env: APP_TOKEN_ISSUER
	TokenIssuer string `env:"TOKEN_ISSUER"`

	// TokenDuration is the lifetime of tokens issued by syncctl.
	// Env: APP_TOKEN_DURATION
	TokenDuration time.Duration `env:"TOKEN_DURATION"`

	// HashKey enables the X-Payload-Hash integrity check on push when set.
	// Env: APP_HASH_KEY
	HashKey string `env:"HASH_KEY"`

	// Version is exposed via GET /api/version.
	// Env: APP_VERSION
	Version string `env:"VERSION"`

	// LogLevel is a zerolog level name ("debug", "info", ...).
	// Env: APP_LOG_LEVEL
	LogLevel string `env:"LOG_LEVEL"`
}

// Storage groups the configuration of all storage backends.
type Storage struct {
	// DB is the server's relational database. An empty DSN selects the
	// in-memory store.
	DB DB `envPrefix:"DB_"`

	// Local is the field client's SQLite outbox.
	Local Local `envPrefix:"LOCAL_"`
}

// DB holds connection settings for the PostgreSQL backend.
type DB struct {
	// DSN is the PostgreSQL connection string.
	// Env: STORAGE_DB_DATABASE_URI
	DSN string `env:"DATABASE_URI"`

	// Driver is the database/sql driver name: "pgx" or "postgres" (lib/pq).
	// Env: STORAGE_DB_DRIVER
	Driver string `env:"DRIVER"`

	// MaxOpenConns caps the connection pool.
	// Env: STORAGE_DB_MAX_OPEN_CONNS
	MaxOpenConns int `env:"MAX_OPEN_CONNS"`
}

// Local holds the field client's local database settings.
type Local struct {
	// DSN is the SQLite file path.
	// Env: STORAGE_LOCAL_DSN
	DSN string `env:"DSN"`
}

// Server holds network and timeout settings for the inbound transport layer.
type Server struct {
	// HTTPAddress is the listen address in "host:port" format.
	// Env: SERVER_ADDRESS
	HTTPAddress string `env:"ADDRESS"`

	// RequestTimeout bounds the handling of a single request.
	// Env: SERVER_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`

	// MaxBodyBytes caps request bodies.
	// Env: SERVER_MAX_BODY_BYTES
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES"`
}

// Sync holds the parameters of the sync protocol.
type Sync struct {
	// MaxBatchSize is the largest accepted push batch.
	// Env: SYNC_MAX_BATCH_SIZE
	MaxBatchSize int `env:"MAX_BATCH_SIZE"`

	// DefaultPullWindow is used when a pull has no lastSyncTimestamp.
	// Env: SYNC_DEFAULT_PULL_WINDOW
	DefaultPullWindow time.Duration `env:"DEFAULT_PULL_WINDOW"`

	// DefaultPullLimit is the page size used when a pull has no limit.
	// Env: SYNC_DEFAULT_PULL_LIMIT
	DefaultPullLimit int `env:"DEFAULT_PULL_LIMIT"`

	// MaxPullLimit is the largest accepted page size.
	// Env: SYNC_MAX_PULL_LIMIT
	MaxPullLimit int `env:"MAX_PULL_LIMIT"`

	// AutoResolveTypes lists entity types whose update conflicts are
	// resolved with last-write-wins at push time.
	// Env: SYNC_AUTO_RESOLVE_TYPES (comma separated)
	AutoResolveTypes []string `env:"AUTO_RESOLVE_TYPES" envSeparator:","`
}

// RateLimit holds the request ceilings of every endpoint group.
type RateLimit struct {
	// Window is the length of a rate-limit window.
	// Env: RATE_LIMIT_WINDOW
	Window time.Duration `env:"WINDOW"`

	// Env: RATE_LIMIT_PUSH_MAX
	PushMax int `env:"PUSH_MAX"`

	// Env: RATE_LIMIT_PULL_MAX
	PullMax int `env:"PULL_MAX"`

	// Env: RATE_LIMIT_RESOLVE_MAX
	ResolveMax int `env:"RESOLVE_MAX"`

	// Env: RATE_LIMIT_QUERY_MAX
	QueryMax int `env:"QUERY_MAX"`

	// RedisAddr selects the shared Redis window store when non-empty.
	// Env: RATE_LIMIT_REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR"`

	// Env: RATE_LIMIT_REDIS_PASSWORD
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Env: RATE_LIMIT_REDIS_DB
	RedisDB int `env:"REDIS_DB"`
}

// Adapter holds the field client's connection to the sync server.
type Adapter struct {
	// HTTPAddress is the base URL of the sync server.
	// Env: ADAPTER_ADDRESS
	HTTPAddress string `env:"ADDRESS"`

	// RequestTimeout bounds every outbound request.
	// Env: ADAPTER_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`

	// Token is the bearer token of the device user.
	// Env: ADAPTER_TOKEN
	Token string `env:"TOKEN"`

	// ClientID is sent as X-Client-ID; it keys the server's rate limiter.
	// Env: ADAPTER_CLIENT_ID
	ClientID string `env:"CLIENT_ID"`
}

// Workers holds configuration for background worker processes.
type Workers struct {
	// SyncInterval is the period of the field client's sync job.
	// Env: WORKERS_SYNC_INTERVAL
	SyncInterval time.Duration `env:"SYNC_INTERVAL"`

	// PushBatchSize is the number of outbox entries sent per push.
	// Env: WORKERS_PUSH_BATCH_SIZE
	PushBatchSize int `env:"PUSH_BATCH_SIZE"`
}

// GetStructuredConfig loads, merges, and validates the configuration from all
// sources. For every field the first non-zero value wins, in this order:
//  1. Environment variables
//  2. Command-line flags
//  3. JSON file (path resolved from sources 1 and 2)
//  4. Built-in defaults
func GetStructuredConfig() (*StructuredConfig, error) {
	return newConfigBuilder().
		withEnv().
		withFlags().
		withJSON().
		withDefaults().
		build()
}

// GetEnvConfig is [GetStructuredConfig] without command-line flags, for
// binaries that own their argument parsing (syncctl).
func GetEnvConfig() (*StructuredConfig, error) {
	return newConfigBuilder().
		withEnv().
		withJSON().
		withDefaults().
		build()
}
