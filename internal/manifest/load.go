package manifest

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default manifest shipped with the binary. A --manifest flag substitutes a
// local file for development against unreleased toolchains.
//
//go:embed manifest.yaml
var defaultManifest []byte

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Default parses the embedded manifest.
func Default() (*Manifest, error) {
	return Parse(defaultManifest)
}

// Parse decodes and validates manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Resolve returns the platform section for an OS × arch pair. A missing
// pair is a configuration error: setup cannot proceed at all.
func (m *Manifest) Resolve(goos, goarch string) (*Platform, error) {
	for i := range m.Platforms {
		p := &m.Platforms[i]
		if p.OS == goos && p.Arch == goarch {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unsupported platform %s/%s", goos, goarch)
}

func (m *Manifest) validate() error {
	if m.Version < 1 {
		return fmt.Errorf("version must be >= 1, got %d", m.Version)
	}
	if len(m.Platforms) == 0 {
		return fmt.Errorf("no platforms declared")
	}

	for _, p := range m.Platforms {
		if p.OS == "" || p.Arch == "" {
			return fmt.Errorf("platform with empty os/arch")
		}
		if err := validateEntries(p.Deps); err != nil {
			return fmt.Errorf("platform %s/%s: %w", p.OS, p.Arch, err)
		}
		seen := map[string]bool{}
		for _, tc := range p.Toolchains {
			if tc.Name == "" {
				return fmt.Errorf("platform %s/%s: toolchain with empty name", p.OS, p.Arch)
			}
			if seen[tc.Name] {
				return fmt.Errorf("platform %s/%s: duplicate toolchain %q", p.OS, p.Arch, tc.Name)
			}
			seen[tc.Name] = true
			if err := validateEntries(tc.Deps); err != nil {
				return fmt.Errorf("toolchain %s: %w", tc.Name, err)
			}
		}
	}
	return nil
}

func validateEntries(entries []Entry) error {
	seen := map[string]bool{}
	for _, e := range entries {
		if e.Name == "" {
			return fmt.Errorf("entry with empty name")
		}
		if seen[e.Name] {
			return fmt.Errorf("duplicate entry %q", e.Name)
		}
		seen[e.Name] = true
		if e.URL == "" {
			return fmt.Errorf("entry %s: missing url", e.Name)
		}
		if e.MD5 == "" {
			return fmt.Errorf("entry %s: missing md5", e.Name)
		}
		for _, env := range e.Env {
			if env.Name == "" {
				return fmt.Errorf("entry %s: env effect with empty name", e.Name)
			}
		}
	}
	return nil
}
