package setup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// ErrChecksum marks an integrity failure. The cached file is not trusted;
// retrying setup re-downloads from scratch.
var ErrChecksum = errors.New("checksum mismatch")

// Fetcher downloads dependency archives into a local cache, gated on md5.
type Fetcher struct {
	Client   *http.Client
	CacheDir string
}

// Ensure returns the path of a cached archive whose md5 matches wantMD5,
// downloading it first if the cache is missing or corrupt. A post-download
// mismatch is a hard integrity failure.
func (f *Fetcher) Ensure(ctx context.Context, rawURL, wantMD5 string) (string, error) {
	name, err := archiveName(rawURL)
	if err != nil {
		return "", err
	}
	cached := filepath.Join(f.CacheDir, name)

	if sum, err := fileMD5(cached); err == nil {
		if strings.EqualFold(sum, wantMD5) {
			slog.Debug("cache hit", "archive", name)
			return cached, nil
		}
		slog.Info("cached archive is stale or corrupt, re-downloading.", "archive", name)
	}

	if err := f.download(ctx, rawURL, cached); err != nil {
		return "", err
	}

	sum, err := fileMD5(cached)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", name, err)
	}
	if !strings.EqualFold(sum, wantMD5) {
		_ = os.Remove(cached)
		return "", fmt.Errorf("%s: %w: got %s, want %s", name, ErrChecksum, sum, wantMD5)
	}
	return cached, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", rawURL, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".partial-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("finalize %s: %w", dest, err)
	}

	slog.Info("downloaded archive.", "archive", filepath.Base(dest), "size", humanize.Bytes(uint64(n)))
	return nil
}

func archiveName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %s: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("url %s has no file name", rawURL)
	}
	return name, nil
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
