// Package cmdutil wires the shared services commands depend on: the state
// store, the parsed manifest, the process runner and the task sequencer.
package cmdutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"westkit/cmd/westkit/ui"
	"westkit/internal/execx"
	"westkit/internal/manifest"
	"westkit/internal/state"
	"westkit/internal/statestore"
	"westkit/internal/taskseq"
)

// DataRoot is where westkit keeps its tools, download cache and state
// database. Override with WESTKIT_HOME.
func DataRoot() string {
	if v := strings.TrimSpace(os.Getenv("WESTKIT_HOME")); v != "" {
		return v
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".westkit"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "westkit")
	case "windows":
		if v := os.Getenv("LOCALAPPDATA"); v != "" {
			return filepath.Join(v, "westkit")
		}
		return filepath.Join(home, "AppData", "Local", "westkit")
	default:
		if v := os.Getenv("XDG_DATA_HOME"); v != "" {
			return filepath.Join(v, "westkit")
		}
		return filepath.Join(home, ".local", "share", "westkit")
	}
}

// App bundles the services a command needs. Construct with Open, Close when
// done.
type App struct {
	Store    *statestore.Store
	Manifest *manifest.Manifest
	Runner   execx.Runner

	DataRoot string
	ToolsDir string
	CacheDir string
}

// Open loads the manifest (the embedded one unless manifestPath overrides
// it) and opens the state store.
func Open(manifestPath string) (*App, error) {
	var (
		m   *manifest.Manifest
		err error
	)
	if manifestPath != "" {
		m, err = manifest.Load(manifestPath)
	} else {
		m, err = manifest.Default()
	}
	if err != nil {
		return nil, err
	}

	root := DataRoot()
	store, err := statestore.Open(filepath.Join(root, "state.db"))
	if err != nil {
		return nil, err
	}

	return &App{
		Store:    store,
		Manifest: m,
		Runner:   execx.Local{},
		DataRoot: root,
		ToolsDir: filepath.Join(root, "tools"),
		CacheDir: filepath.Join(root, "cache"),
	}, nil
}

func (a *App) Close() {
	if a != nil && a.Store != nil {
		_ = a.Store.Close()
	}
}

// Sequencer builds a task sequencer that streams task output to the
// terminal and reports completions through the UI message channel.
func (a *App) Sequencer() *taskseq.Sequencer {
	s := taskseq.New(a.Runner, Notifier{})
	s.Stdout = os.Stdout
	s.Stderr = os.Stderr
	return s
}

// Task builds a task descriptor carrying the setup record's environment so
// west, the toolchain and the venv are all resolvable.
func (a *App) Task(cfg *state.Config, name, dir, command string, args ...string) taskseq.Task {
	return taskseq.Task{
		Name:        name,
		Command:     command,
		Args:        args,
		Dir:         dir,
		Env:         cfg.Env,
		PathPrepend: cfg.Path,
	}
}

// Workspace resolves the workspace directory for project-scoped commands:
// an explicit flag wins, else the current directory.
func Workspace(flag string) (string, error) {
	if strings.TrimSpace(flag) != "" {
		return filepath.Abs(flag)
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return dir, nil
}

// WorkspaceValue reads a per-workspace setting, falling back to def.
func WorkspaceValue(ctx context.Context, store *statestore.Store, dir, key, def string) string {
	v, ok, err := store.Get(ctx, statestore.Workspace, statestore.WorkspaceKey(dir, key))
	if err != nil || !ok || v == "" {
		return def
	}
	return v
}

// SetWorkspaceValue persists a per-workspace setting.
func SetWorkspaceValue(ctx context.Context, store *statestore.Store, dir, key, value string) error {
	return store.Set(ctx, statestore.Workspace, statestore.WorkspaceKey(dir, key), value)
}

// Notifier is the sequencer's user-facing message side channel.
type Notifier struct{}

func (Notifier) Info(msg string)  { fmt.Println(ui.SuccessMsg("%s", msg)) }
func (Notifier) Error(msg string) { fmt.Println(ui.ErrorMsg("%s", msg)) }
