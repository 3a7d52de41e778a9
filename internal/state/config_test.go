package state

import (
	"context"
	"path/filepath"
	"testing"

	"westkit/internal/statestore"
)

func openTest(t *testing.T) *statestore.Store {
	t.Helper()
	s, err := statestore.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadReturnsDefaultsOnFirstUse(t *testing.T) {
	store := openTest(t)

	cfg, err := Load(context.Background(), store)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.IsSetup || cfg.SetupInProgress {
		t.Fatalf("fresh config = %+v, want unset flags", cfg)
	}
	if cfg.ManifestVersion != 0 {
		t.Fatalf("fresh ManifestVersion = %d, want 0", cfg.ManifestVersion)
	}
	if cfg.Env == nil {
		t.Fatal("fresh Env map is nil")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := openTest(t)
	ctx := context.Background()

	in := &Config{
		IsSetup:         true,
		ManifestVersion: 3,
		Toolchain:       "arm",
		Env:             map[string]string{"ZEPHYR_TOOLCHAIN_VARIANT": "zephyr"},
		Path:            []string{"/tools/env/bin"},
	}
	if err := Save(ctx, store, in); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	out, err := Load(ctx, store)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !out.IsSetup || out.ManifestVersion != 3 || out.Toolchain != "arm" {
		t.Fatalf("Load() = %+v", out)
	}
	if out.Env["ZEPHYR_TOOLCHAIN_VARIANT"] != "zephyr" {
		t.Fatalf("Env = %v", out.Env)
	}
	if len(out.Path) != 1 || out.Path[0] != "/tools/env/bin" {
		t.Fatalf("Path = %v", out.Path)
	}
}

func TestUpdateReadsBeforeWriting(t *testing.T) {
	store := openTest(t)
	ctx := context.Background()

	// An intervening write lands between a caller's earlier Load and its
	// Update; the Update must not clobber it.
	if err := Save(ctx, store, &Config{ManifestVersion: 7, Toolchain: "arm"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := Update(ctx, store, func(c *Config) { c.IsSetup = false }); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	out, err := Load(ctx, store)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if out.ManifestVersion != 7 || out.Toolchain != "arm" {
		t.Fatalf("Update clobbered fields: %+v", out)
	}
}

func TestPrependPathDeduplicates(t *testing.T) {
	cfg := &Config{Path: []string{"/a", "/b"}}
	cfg.PrependPath("/b")
	if len(cfg.Path) != 2 || cfg.Path[0] != "/b" || cfg.Path[1] != "/a" {
		t.Fatalf("Path = %v, want [/b /a]", cfg.Path)
	}
}
