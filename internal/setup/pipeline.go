// Package setup implements the manifest-driven provisioning pipeline:
// preflight checks, an isolated Python environment with west, then a
// download → verify → extract → configure pass per dependency entry. Steps
// run strictly in order and the first unrecoverable failure aborts the
// rest; progress committed so far stays persisted.
package setup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"westkit/internal/execx"
	"westkit/internal/manifest"
	"westkit/internal/progress"
	"westkit/internal/state"
	"westkit/internal/statestore"
)

// Extractor unpacks an archive into a destination directory.
type Extractor interface {
	Extract(ctx context.Context, src, dest string) error
}

// Pipeline provisions the toolchain described by a manifest.
type Pipeline struct {
	Runner    execx.Runner
	Store     *statestore.Store
	Fetcher   *Fetcher
	Extractor Extractor

	// ToolsDir is the fixed root for the venv and every install dir.
	ToolsDir string

	// Tracker receives step transitions for progress UI. Optional.
	Tracker *progress.Tracker
}

const (
	stepPreflight = "preflight"
	stepVenv      = "python environment"
	stepFinalize  = "finalize"
)

// Run executes the full pipeline for one platform/arch/toolchain choice.
// Cancellation is polled between steps; an in-flight external process is
// not force-killed by pipeline cancellation (its own context handles that).
func (p *Pipeline) Run(ctx context.Context, goos, goarch, toolchain string, m *manifest.Manifest) error {
	plat, err := m.Resolve(goos, goarch)
	if err != nil {
		return err
	}
	if len(plat.Toolchains) > 0 && toolchain == "" {
		return fmt.Errorf("no toolchain selected (available: %s)",
			strings.Join(plat.ToolchainNames(), ", "))
	}
	if toolchain != "" {
		if _, ok := plat.Toolchain(toolchain); !ok {
			return fmt.Errorf("unknown toolchain %q (available: %s)",
				toolchain, strings.Join(plat.ToolchainNames(), ", "))
		}
	}

	entries := plat.AllEntries(toolchain)
	p.registerSteps(entries)

	cfg, err := state.Update(ctx, p.Store, func(c *state.Config) {
		c.IsSetup = false
		c.SetupInProgress = true
		c.Toolchain = toolchain
	})
	if err != nil {
		return err
	}
	env := newEnvSet(cfg)

	runErr := p.run(ctx, entries, env, m.Version)
	if runErr != nil {
		// A clean failure is not a crash: clear the in-progress marker so
		// the doctor reports "setup failed" rather than "setup interrupted".
		if _, err := state.Update(ctx, p.Store, func(c *state.Config) {
			c.SetupInProgress = false
		}); err != nil {
			slog.Warn("could not clear setup-in-progress flag", "err", err)
		}
	}
	return runErr
}

func (p *Pipeline) run(ctx context.Context, entries []manifest.Entry, env *envSet, version int) error {
	if err := p.step(stepPreflight, "checking git and python", func() error {
		if err := checkGit(ctx, p.Runner); err != nil {
			return err
		}
		_, err := findPython(ctx, p.Runner)
		return err
	}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := p.step(stepVenv, "creating isolated python environment", func() error {
		python, err := findPython(ctx, p.Runner)
		if err != nil {
			return err
		}
		bin, err := createVenv(ctx, p.Runner, python, filepath.Join(p.ToolsDir, "env"))
		if err != nil {
			return err
		}
		env.prependPath(bin)
		return p.persist(ctx, env)
	}); err != nil {
		return err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := entry
		if err := p.step(entry.Name, "installing "+entry.Name, func() error {
			return p.installEntry(ctx, env, entry)
		}); err != nil {
			return fmt.Errorf("install %s: %w", entry.Name, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return p.step(stepFinalize, "recording setup state", func() error {
		_, err := state.Update(ctx, p.Store, func(c *state.Config) {
			env.snapshot(c)
			c.IsSetup = true
			c.SetupInProgress = false
			c.ManifestVersion = version
		})
		return err
	})
}

// installEntry downloads, unpacks, and wires one dependency into the
// persisted environment.
func (p *Pipeline) installEntry(ctx context.Context, env *envSet, e manifest.Entry) error {
	archivePath, err := p.Fetcher.Ensure(ctx, e.URL, e.MD5)
	if err != nil {
		return err
	}

	dest := e.InstallDir(p.ToolsDir)
	if e.ShouldClear() {
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("clear %s: %w", dest, err)
		}
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	if err := p.Extractor.Extract(ctx, archivePath, dest); err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	pathDir := dest
	if e.Suffix != "" {
		pathDir = filepath.Join(dest, filepath.FromSlash(e.Suffix))
	}
	env.prependPath(pathDir)
	for _, eff := range e.Env {
		env.apply(eff, dest)
	}

	// Commit before post-install commands so an interrupted setup keeps
	// every fully installed dependency.
	if err := p.persist(ctx, env); err != nil {
		return err
	}

	for _, cmdline := range e.Cmds {
		res, err := execx.Shell(ctx, p.Runner, cmdline, execx.Options{
			Dir:         dest,
			Env:         env.varsCopy(),
			PathPrepend: env.path,
		})
		if err != nil {
			return fmt.Errorf("post-install %q: %w", cmdline, err)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("post-install %q exited %d: %s",
				cmdline, res.ExitCode, strings.TrimSpace(res.Stderr))
		}
	}
	return nil
}

// persist writes the env snapshot to the setup record and regenerates the
// environment script exposed to future terminal sessions.
func (p *Pipeline) persist(ctx context.Context, env *envSet) error {
	if _, err := state.Update(ctx, p.Store, func(c *state.Config) {
		env.snapshot(c)
	}); err != nil {
		return err
	}
	if err := os.MkdirAll(p.ToolsDir, 0o755); err != nil {
		return fmt.Errorf("create tools dir: %w", err)
	}
	return env.writeScript(p.ToolsDir)
}

func (p *Pipeline) registerSteps(entries []manifest.Entry) {
	if p.Tracker == nil {
		return
	}
	ids := []string{stepPreflight, stepVenv}
	for _, e := range entries {
		ids = append(ids, e.Name)
	}
	ids = append(ids, stepFinalize)
	p.Tracker.Add(ids...)
}

func (p *Pipeline) step(id, message string, fn func() error) error {
	if p.Tracker == nil {
		return fn()
	}
	return p.Tracker.Do(id, message, fn)
}
