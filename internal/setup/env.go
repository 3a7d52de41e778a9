package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"westkit/internal/manifest"
	"westkit/internal/state"
)

// envSet accumulates the environment mutations applied during setup: PATH
// prepends (front first) and variable assignments. It feeds three places:
// the in-process environment of subsequent pipeline steps, the persisted
// snapshot in the setup record, and the generated shell script that future
// terminal sessions source.
type envSet struct {
	vars map[string]string
	path []string
}

func newEnvSet(cfg *state.Config) *envSet {
	e := &envSet{vars: map[string]string{}}
	for k, v := range cfg.Env {
		e.vars[k] = v
	}
	e.path = append(e.path, cfg.Path...)
	return e
}

func (e *envSet) prependPath(dir string) {
	out := make([]string, 0, len(e.path)+1)
	out = append(out, dir)
	for _, p := range e.path {
		if p != dir {
			out = append(out, p)
		}
	}
	e.path = out
}

// apply realizes one manifest env effect against an entry's install dir.
func (e *envSet) apply(eff manifest.EnvEffect, installDir string) {
	value := eff.Value
	if eff.FromInstall {
		value = installDir
		if eff.Value != "" {
			value = filepath.Join(installDir, filepath.FromSlash(eff.Value))
		}
	}
	if eff.Append {
		if prev, ok := e.vars[eff.Name]; ok && prev != "" {
			value = prev + string(os.PathListSeparator) + value
		} else if prev := os.Getenv(eff.Name); prev != "" {
			value = prev + string(os.PathListSeparator) + value
		}
	}
	e.vars[eff.Name] = value
}

// snapshot copies the accumulated state into the setup record.
func (e *envSet) snapshot(cfg *state.Config) {
	cfg.Env = make(map[string]string, len(e.vars))
	for k, v := range e.vars {
		cfg.Env[k] = v
	}
	cfg.Path = append([]string(nil), e.path...)
}

// varsCopy returns the assignments for process execution overlays.
func (e *envSet) varsCopy() map[string]string {
	out := make(map[string]string, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

// ScriptName is the environment script generated under the tools dir.
// Terminals spawned outside westkit source it to inherit the toolchain
// environment.
func ScriptName() string {
	if runtime.GOOS == "windows" {
		return "env.bat"
	}
	return "env.sh"
}

// writeScript renders the environment script. Variables are emitted in
// sorted order so reruns produce identical files.
func (e *envSet) writeScript(toolsDir string) error {
	var sb strings.Builder

	names := make([]string, 0, len(e.vars))
	for k := range e.vars {
		names = append(names, k)
	}
	sort.Strings(names)

	if runtime.GOOS == "windows" {
		sb.WriteString("@echo off\r\n")
		if len(e.path) > 0 {
			fmt.Fprintf(&sb, "set PATH=%s;%%PATH%%\r\n", strings.Join(e.path, ";"))
		}
		for _, k := range names {
			fmt.Fprintf(&sb, "set %s=%s\r\n", k, e.vars[k])
		}
	} else {
		sb.WriteString("# Generated by westkit setup. Source this file to use the toolchain.\n")
		if len(e.path) > 0 {
			fmt.Fprintf(&sb, "export PATH=%q:$PATH\n", strings.Join(e.path, ":"))
		}
		for _, k := range names {
			fmt.Fprintf(&sb, "export %s=%q\n", k, e.vars[k])
		}
	}

	path := filepath.Join(toolsDir, ScriptName())
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write env script: %w", err)
	}
	return nil
}
