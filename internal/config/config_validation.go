// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"fmt"
	"slices"
)

var supportedDBDrivers = []string{"pgx", "postgres"}

var supportedEntityTypes = []string{"assessment", "response", "entity"}

// validate checks that the merged [StructuredConfig] is internally
// consistent. Secrets and addresses are checked by the binaries that need
// them.
func (cfg *StructuredConfig) validate() error {
	s := cfg.Sync
	if s.MaxBatchSize <= 0 || s.DefaultPullWindow <= 0 {
		return fmt.Errorf("%w: batch size and pull window must be positive", ErrInvalidSyncConfigs)
	}
	if s.DefaultPullLimit <= 0 || s.MaxPullLimit < s.DefaultPullLimit {
		return fmt.Errorf("%w: pull limits %d/%d", ErrInvalidSyncConfigs, s.DefaultPullLimit, s.MaxPullLimit)
	}
	for _, t := range s.AutoResolveTypes {
		if !slices.Contains(supportedEntityTypes, t) {
			return fmt.Errorf("%w: unknown auto-resolve entity type %q", ErrInvalidSyncConfigs, t)
		}
	}

	rl := cfg.RateLimit
	if rl.Window <= 0 || rl.PushMax <= 0 || rl.PullMax <= 0 || rl.ResolveMax <= 0 || rl.QueryMax <= 0 {
		return ErrInvalidRateLimitConfigs
	}

	if !slices.Contains(supportedDBDrivers, cfg.Storage.DB.Driver) {
		return fmt.Errorf("%w: unsupported driver %q", ErrInvalidStorageConfigs, cfg.Storage.DB.Driver)
	}

	return nil
}

func (cfg *ClientConfig) validate() error {
	if cfg.Storage.DSN == "" {
		return ErrInvalidStorageConfigs
	}

	if cfg.Adapter.HTTPAddress == "" || cfg.Adapter.RequestTimeout == 0 {
		return ErrInvalidAdapterConfigs
	}

	if cfg.Workers.SyncInterval <= 0 || cfg.Workers.PushBatchSize <= 0 {
		return ErrInvalidWorkerConfigs
	}

	return nil
}
