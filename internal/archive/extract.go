// Package archive extracts downloaded toolchain archives. Zip and gzip/bzip2
// tarballs are handled in-process; xz tarballs and 7z archives are delegated
// to the system tar/7z, which every supported platform ships or the setup
// preflight guarantees.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"westkit/internal/execx"
)

// Extractor unpacks archives into destination directories.
type Extractor struct {
	// Runner executes the external tar/7z fallbacks.
	Runner execx.Runner
}

// Extract unpacks src into dest, dispatching on the file extension. Files
// that are not a recognized container format are copied into dest as-is
// (standalone binaries like ninja releases ship that way on some platforms).
func (x Extractor) Extract(ctx context.Context, src, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	lower := strings.ToLower(src)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return extractZip(src, dest)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return extractTarball(src, dest, func(r io.Reader) (io.Reader, error) {
			gz, err := gzip.NewReader(r)
			if err != nil {
				return nil, err
			}
			return gz, nil
		})
	case strings.HasSuffix(lower, ".tar.bz2"):
		return extractTarball(src, dest, func(r io.Reader) (io.Reader, error) {
			return bzip2.NewReader(r), nil
		})
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".tar"):
		return x.extractWithTar(ctx, src, dest)
	case strings.HasSuffix(lower, ".7z"):
		return x.extractWith7z(ctx, src, dest)
	default:
		return copyInto(src, dest)
	}
}

func (x Extractor) extractWithTar(ctx context.Context, src, dest string) error {
	res, err := x.Runner.Run(ctx, "tar", []string{"-xf", src, "-C", dest}, execx.Options{})
	if err != nil {
		return fmt.Errorf("extract %s: %w", filepath.Base(src), err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("extract %s: tar exited %d: %s",
			filepath.Base(src), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (x Extractor) extractWith7z(ctx context.Context, src, dest string) error {
	res, err := x.Runner.Run(ctx, "7z", []string{"x", "-y", "-o" + dest, src}, execx.Options{})
	if err != nil {
		return fmt.Errorf("extract %s: %w", filepath.Base(src), err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("extract %s: 7z exited %d: %s",
			filepath.Base(src), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func extractZip(src, dest string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, err := securePath(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", f.Name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create dir for %s: %w", f.Name, err)
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open %s in zip: %w", f.Name, err)
		}
		err = writeFile(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func extractTarball(src, dest string, decompress func(io.Reader) (io.Reader, error)) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	r, err := decompress(f)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", filepath.Base(src), err)
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		target, err := securePath(dest, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", hdr.Name, err)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create dir for %s: %w", hdr.Name, err)
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("symlink %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create dir for %s: %w", hdr.Name, err)
			}
			if err := writeFile(target, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		}
	}
}

// copyInto places a non-archive download into dest, marked executable.
func copyInto(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	return writeFile(filepath.Join(dest, filepath.Base(src)), in, 0o755)
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	return out.Close()
}

// securePath rejects entries that would escape dest.
func securePath(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, nil
}
