// Package state holds the persisted setup record. The setup pipeline and
// the validator are its only writers.
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"westkit/internal/statestore"
)

const configKey = "setup-config"

// Config is the machine-wide setup record.
//
// IsSetup means a full pipeline run completed against ManifestVersion.
// SetupInProgress marks a pipeline run that started but has not finished;
// a crash leaves it set, which the doctor reports.
type Config struct {
	IsSetup         bool              `json:"isSetup"`
	SetupInProgress bool              `json:"isSetupInProgress"`
	ManifestVersion int               `json:"manifestVersion"`
	Toolchain       string            `json:"toolchain,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	Path            []string          `json:"path,omitempty"`
}

// Load reads the setup record, returning defaults when none exists yet.
func Load(ctx context.Context, store *statestore.Store) (*Config, error) {
	raw, ok, err := store.Get(ctx, statestore.Global, configKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Config{Env: map[string]string{}}, nil
	}

	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("parse setup config: %w", err)
	}
	if cfg.Env == nil {
		cfg.Env = map[string]string{}
	}
	return &cfg, nil
}

// Save persists the record.
func Save(ctx context.Context, store *statestore.Store, cfg *Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal setup config: %w", err)
	}
	return store.Set(ctx, statestore.Global, configKey, string(raw))
}

// Update applies fn to a freshly loaded copy and persists the result.
// Always mutating through a re-read keeps a stale in-memory snapshot
// (captured before an earlier suspension point) from clobbering newer
// writes.
func Update(ctx context.Context, store *statestore.Store, fn func(*Config)) (*Config, error) {
	cfg, err := Load(ctx, store)
	if err != nil {
		return nil, err
	}
	fn(cfg)
	if err := Save(ctx, store, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// PrependPath records a PATH prepend, newest first, dropping duplicates.
func (c *Config) PrependPath(dir string) {
	out := make([]string, 0, len(c.Path)+1)
	out = append(out, dir)
	for _, p := range c.Path {
		if p != dir {
			out = append(out, p)
		}
	}
	c.Path = out
}
