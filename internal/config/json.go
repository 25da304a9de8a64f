package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// StructuredJSONConfig mirrors [StructuredConfig] in the layout of the JSON
// configuration file. Durations accept Go duration strings ("30s") or
// nanosecond numbers.
type StructuredJSONConfig struct {
	App struct {
		TokenSignKey  string   `json:"token_sign_key"`
		TokenIssuer   string   `json:"token_issuer"`
		TokenDuration Duration `json:"token_duration"`
		HashKey       string   `json:"hash_key"`
		Version       string   `json:"version"`
		LogLevel      string   `json:"log_level"`
	} `json:"app,omitempty"`

	Storage struct {
		DB struct {
			DSN          string `json:"dsn"`
			Driver       string `json:"driver"`
			MaxOpenConns int    `json:"max_open_conns"`
		} `json:"db,omitempty"`

		Local struct {
			DSN string `json:"dsn"`
		} `json:"local,omitempty"`
	} `json:"storage,omitempty"`

	Server struct {
		HTTPAddress    string   `json:"http_address"`
		RequestTimeout Duration `json:"request_timeout"`
		MaxBodyBytes   int64    `json:"max_body_bytes"`
	} `json:"server,omitempty"`

	Sync struct {
		MaxBatchSize      int      `json:"max_batch_size"`
		DefaultPullWindow Duration `json:"default_pull_window"`
		DefaultPullLimit  int      `json:"default_pull_limit"`
		MaxPullLimit      int      `json:"max_pull_limit"`
		AutoResolveTypes  []string `json:"auto_resolve_types"`
	} `json:"sync,omitempty"`

	RateLimit struct {
		Window        Duration `json:"window"`
		PushMax       int      `json:"push_max"`
		PullMax       int      `json:"pull_max"`
		ResolveMax    int      `json:"resolve_max"`
		QueryMax      int      `json:"query_max"`
		RedisAddr     string   `json:"redis_addr"`
		RedisPassword string   `json:"redis_password"`
		RedisDB       int      `json:"redis_db"`
	} `json:"rate_limit,omitempty"`

	Adapter struct {
		HTTPAddress    string   `json:"http_address"`
		RequestTimeout Duration `json:"request_timeout"`
		Token          string   `json:"token"`
		ClientID       string   `json:"client_id"`
	} `json:"adapter,omitempty"`

	Workers struct {
		SyncInterval  Duration `json:"sync_interval"`
		PushBatchSize int      `json:"push_batch_size"`
	} `json:"workers,omitempty"`
}

func parseJSON(jsonFilePath string) (*StructuredConfig, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var jsonCfg StructuredJSONConfig
	if err := json.NewDecoder(jsonFile).Decode(&jsonCfg); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	cfg := &StructuredConfig{
		App: App{
			TokenSignKey:  jsonCfg.App.TokenSignKey,
			TokenIssuer:   jsonCfg.App.TokenIssuer,
			TokenDuration: time.Duration(jsonCfg.App.TokenDuration),
			HashKey:       jsonCfg.App.HashKey,
			Version:       jsonCfg.App.Version,
			LogLevel:      jsonCfg.App.LogLevel,
		},
		Storage: Storage{
			DB: DB{
				DSN:          jsonCfg.Storage.DB.DSN,
				Driver:       jsonCfg.Storage.DB.Driver,
				MaxOpenConns: jsonCfg.Storage.DB.MaxOpenConns,
			},
			Local: Local{DSN: jsonCfg.Storage.Local.DSN},
		},
		Server: Server{
			HTTPAddress:    jsonCfg.Server.HTTPAddress,
			RequestTimeout: time.Duration(jsonCfg.Server.RequestTimeout),
			MaxBodyBytes:   jsonCfg.Server.MaxBodyBytes,
		},
		Sync: Sync{
			MaxBatchSize:      jsonCfg.Sync.MaxBatchSize,
			DefaultPullWindow: time.Duration(jsonCfg.Sync.DefaultPullWindow),
			DefaultPullLimit:  jsonCfg.Sync.DefaultPullLimit,
			MaxPullLimit:      jsonCfg.Sync.MaxPullLimit,
			AutoResolveTypes:  jsonCfg.Sync.AutoResolveTypes,
		},
		RateLimit: RateLimit{
			Window:        time.Duration(jsonCfg.RateLimit.Window),
			PushMax:       jsonCfg.RateLimit.PushMax,
			PullMax:       jsonCfg.RateLimit.PullMax,
			ResolveMax:    jsonCfg.RateLimit.ResolveMax,
			QueryMax:      jsonCfg.RateLimit.QueryMax,
			RedisAddr:     jsonCfg.RateLimit.RedisAddr,
			RedisPassword: jsonCfg.RateLimit.RedisPassword,
			RedisDB:       jsonCfg.RateLimit.RedisDB,
		},
		Adapter: Adapter{
			HTTPAddress:    jsonCfg.Adapter.HTTPAddress,
			RequestTimeout: time.Duration(jsonCfg.Adapter.RequestTimeout),
			Token:          jsonCfg.Adapter.Token,
			ClientID:       jsonCfg.Adapter.ClientID,
		},
		Workers: Workers{
			SyncInterval:  time.Duration(jsonCfg.Workers.SyncInterval),
			PushBatchSize: jsonCfg.Workers.PushBatchSize,
		},
	}

	return cfg, nil
}

// Duration is a wrapper around time.Duration that supports JSON unmarshaling from strings like "1h", "30s"
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return json.Unmarshal(b, (*time.Duration)(d))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
