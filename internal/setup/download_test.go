package setup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDownloadsAndCaches(t *testing.T) {
	body := []byte("toolchain archive bytes")
	sum := md5.Sum(body)
	wantMD5 := hex.EncodeToString(sum[:])

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := &Fetcher{Client: srv.Client(), CacheDir: t.TempDir()}
	ctx := context.Background()

	path, err := f.Ensure(ctx, srv.URL+"/sdk.tar.gz", wantMD5)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if got, _ := os.ReadFile(path); string(got) != string(body) {
		t.Fatalf("cached content = %q", got)
	}

	// Second call must be satisfied from the cache without touching the
	// network.
	again, err := f.Ensure(ctx, srv.URL+"/sdk.tar.gz", wantMD5)
	if err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}
	if again != path {
		t.Fatalf("second Ensure() = %q, want %q", again, path)
	}
	if hits != 1 {
		t.Fatalf("server hits = %d, want 1", hits)
	}
}

func TestEnsureRedownloadsCorruptCache(t *testing.T) {
	body := []byte("good bytes")
	sum := md5.Sum(body)
	wantMD5 := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cache := t.TempDir()
	if err := os.WriteFile(filepath.Join(cache, "sdk.zip"), []byte("corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &Fetcher{Client: srv.Client(), CacheDir: cache}
	path, err := f.Ensure(context.Background(), srv.URL+"/sdk.zip", wantMD5)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if got, _ := os.ReadFile(path); string(got) != string(body) {
		t.Fatalf("cache was not replaced: %q", got)
	}
}

func TestEnsureRejectsChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("unexpected payload"))
	}))
	defer srv.Close()

	f := &Fetcher{Client: srv.Client(), CacheDir: t.TempDir()}
	_, err := f.Ensure(context.Background(), srv.URL+"/sdk.zip", "00000000000000000000000000000000")
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("Ensure() error = %v, want ErrChecksum", err)
	}
	// The rejected file must not poison the cache.
	if _, err := os.Stat(filepath.Join(f.CacheDir, "sdk.zip")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("mismatched archive left in cache: %v", err)
	}
}

func TestEnsureRejectsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := &Fetcher{Client: srv.Client(), CacheDir: t.TempDir()}
	if _, err := f.Ensure(context.Background(), srv.URL+"/missing.zip", "00000000000000000000000000000000"); err == nil {
		t.Fatal("Ensure() accepted a 404 response")
	}
}

func TestArchiveName(t *testing.T) {
	name, err := archiveName("https://example.com/dl/sdk-0.16.1.tar.xz?token=abc")
	if err != nil {
		t.Fatalf("archiveName() error = %v", err)
	}
	if name != "sdk-0.16.1.tar.xz" {
		t.Fatalf("archiveName() = %q", name)
	}

	if _, err := archiveName("https://example.com/"); err == nil {
		t.Fatal("archiveName() accepted a URL without a file name")
	}
}
