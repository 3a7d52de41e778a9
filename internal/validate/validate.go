// Package validate re-derives the expected installation state from the
// manifest and compares it to the filesystem and environment. Drift
// demotes the persisted "setup complete" flag so gated features re-prompt
// for setup instead of failing somewhere deep inside a build.
package validate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"westkit/internal/execx"
	"westkit/internal/manifest"
	"westkit/internal/state"
	"westkit/internal/statestore"
)

// Result is one validation run's outcome. Errors are hard failures that
// require re-running setup; warnings are drift that may be intentional.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string

	// Missing names dependency entries whose install dir failed the check,
	// for retry targeting.
	Missing []string
}

func (r *Result) errf(format string, a ...any)  { r.Errors = append(r.Errors, fmt.Sprintf(format, a...)) }
func (r *Result) warnf(format string, a ...any) { r.Warnings = append(r.Warnings, fmt.Sprintf(format, a...)) }

// Validator checks an installation against the manifest.
type Validator struct {
	Runner   execx.Runner
	Store    *statestore.Store
	Manifest *manifest.Manifest
	ToolsDir string

	// ProbeTimeout bounds each executable probe. Zero means 5s.
	ProbeTimeout time.Duration
}

// Quick compares version numbers and flags only — no filesystem or
// subprocess work. Hot paths (every build) gate on this.
func (v *Validator) Quick(cfg *state.Config) Result {
	var r Result
	if cfg.ManifestVersion != v.Manifest.Version {
		r.errf("installed manifest version %d does not match current version %d; re-run setup",
			cfg.ManifestVersion, v.Manifest.Version)
	}
	if !cfg.IsSetup {
		r.errf("toolchain setup has not completed; run westkit setup")
	}
	if cfg.SetupInProgress {
		r.warnf("a setup run is marked in progress; it may have been interrupted")
	}
	r.Valid = len(r.Errors) == 0
	return r
}

// Full performs the heavyweight physical verification: install directories
// must exist and be non-empty, probe executables must spawn, and the env
// snapshot must match what the manifest declares. Hard failures self-heal
// the stored record by clearing IsSetup.
func (v *Validator) Full(ctx context.Context, goos, goarch string) (Result, error) {
	cfg, err := state.Load(ctx, v.Store)
	if err != nil {
		return Result{}, err
	}

	r := v.Quick(cfg)

	plat, err := v.Manifest.Resolve(goos, goarch)
	if err != nil {
		r.errf("%v", err)
		r.Valid = false
		return r, nil
	}

	for _, entry := range plat.AllEntries(cfg.Toolchain) {
		v.checkEntry(ctx, cfg, entry, &r)
	}

	r.Valid = len(r.Errors) == 0
	if !r.Valid && cfg.IsSetup {
		// Self-heal through a fresh read so an intervening setup
		// completion is not clobbered by this run's stale snapshot.
		if _, err := state.Update(ctx, v.Store, func(c *state.Config) {
			c.IsSetup = false
		}); err != nil {
			return r, fmt.Errorf("demote setup flag: %w", err)
		}
		slog.Info("installation drift detected, setup flag cleared.", "errors", len(r.Errors))
	}
	return r, nil
}

func (v *Validator) checkEntry(ctx context.Context, cfg *state.Config, entry manifest.Entry, r *Result) {
	dest := entry.InstallDir(v.ToolsDir)
	ok, err := dirNonEmpty(dest)
	if err != nil || !ok {
		r.errf("%s: install directory %s is missing or empty", entry.Name, dest)
		r.Missing = append(r.Missing, entry.Name)
		return
	}

	if entry.Probe != "" {
		v.probe(ctx, cfg, entry, r)
	}

	for _, eff := range entry.Env {
		expected := eff.Value
		if eff.FromInstall {
			expected = dest
			if eff.Value != "" {
				expected = filepath.Join(dest, filepath.FromSlash(eff.Value))
			}
		}
		got, present := cfg.Env[eff.Name]
		switch {
		case !present:
			r.warnf("%s: env var %s is not in the setup snapshot", entry.Name, eff.Name)
		case !eff.Append && got != expected:
			r.warnf("%s: env var %s is %q, expected %q", entry.Name, eff.Name, got, expected)
		}
	}
}

// probe spawns the entry's well-known executable with --version. Any exit
// at all counts as success; tools that print to stderr or return non-zero
// for --version are still functional. Spawn errors and timeouts are
// warnings, not hard failures.
func (v *Validator) probe(ctx context.Context, cfg *state.Config, entry manifest.Entry, r *Result) {
	timeout := v.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := v.Runner.Run(probeCtx, entry.Probe, []string{"--version"}, execx.Options{
		Env:         cfg.Env,
		PathPrepend: cfg.Path,
	})
	if err != nil {
		r.warnf("%s: executable %s did not run: %v", entry.Name, entry.Probe, err)
	}
}

func dirNonEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return false, nil
		}
		return false, err
	}
	return len(entries) > 0, nil
}

// Gate loads the stored record and quick-validates it, returning an error
// suitable for aborting a command that assumes setup is complete.
func Gate(ctx context.Context, store *statestore.Store, m *manifest.Manifest) (*state.Config, error) {
	cfg, err := state.Load(ctx, store)
	if err != nil {
		return nil, err
	}
	v := Validator{Manifest: m}
	if r := v.Quick(cfg); !r.Valid {
		return nil, fmt.Errorf("%s", r.Errors[0])
	}
	return cfg, nil
}
