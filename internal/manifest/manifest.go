// Package manifest defines the versioned dependency manifest that drives
// toolchain setup and validation. The document is parsed and validated once
// at startup and the resulting structure is injected wherever it is needed;
// nothing else re-reads the file.
package manifest

import "path/filepath"

// Manifest is the top-level document. Version increases monotonically; a
// setup recorded against an older version is stale.
type Manifest struct {
	Version   int        `yaml:"version"`
	Platforms []Platform `yaml:"platforms"`
}

// Platform holds the dependency lists for one OS × architecture pair,
// matching runtime.GOOS / runtime.GOARCH.
type Platform struct {
	OS         string      `yaml:"os"`
	Arch       string      `yaml:"arch"`
	Deps       []Entry     `yaml:"deps"`
	Toolchains []Toolchain `yaml:"toolchains"`
}

// Toolchain is one selectable variant. Exactly one is chosen at setup time
// and its deps are installed after the platform's general deps.
type Toolchain struct {
	Name string  `yaml:"name"`
	Deps []Entry `yaml:"deps"`
}

// Entry describes one downloadable dependency.
type Entry struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	MD5  string `yaml:"md5"`

	// Suffix is the path inside the install dir that carries executables;
	// it (rather than the install dir itself) is prepended to PATH when set.
	Suffix string `yaml:"suffix,omitempty"`

	// CopyTo is an optional subfolder under the install dir that receives
	// the archive contents, for archives whose layout needs remapping.
	CopyTo string `yaml:"copy_to,omitempty"`

	// ClearTarget controls whether the install dir is wiped before extract.
	// Unset means true: reinstalls are idempotent by default.
	ClearTarget *bool `yaml:"clear_target,omitempty"`

	// Probe is a well-known executable the validator spawns with --version
	// to confirm the install actually runs. Empty skips the probe.
	Probe string `yaml:"probe,omitempty"`

	Env  []EnvEffect `yaml:"env,omitempty"`
	Cmds []string    `yaml:"cmds,omitempty"`
}

// EnvEffect is one environment mutation an entry applies after install.
// Either Value is a literal, or FromInstall derives the value from the
// entry's install path (plus Value as a relative suffix when set).
type EnvEffect struct {
	Name        string `yaml:"name"`
	Value       string `yaml:"value,omitempty"`
	FromInstall bool   `yaml:"from_install,omitempty"`

	// Append joins onto any pre-existing value with the platform list
	// separator instead of replacing it.
	Append bool `yaml:"append,omitempty"`
}

// ShouldClear reports whether the install dir is wiped before extraction.
func (e Entry) ShouldClear() bool {
	return e.ClearTarget == nil || *e.ClearTarget
}

// InstallDir returns the entry's destination under toolsDir, honoring the
// CopyTo subfolder remap.
func (e Entry) InstallDir(toolsDir string) string {
	dir := filepath.Join(toolsDir, e.Name)
	if e.CopyTo != "" {
		dir = filepath.Join(dir, filepath.FromSlash(e.CopyTo))
	}
	return dir
}

// ToolchainNames lists the selectable variants for prompting.
func (p *Platform) ToolchainNames() []string {
	names := make([]string, 0, len(p.Toolchains))
	for _, tc := range p.Toolchains {
		names = append(names, tc.Name)
	}
	return names
}

// Toolchain returns the named variant.
func (p *Platform) Toolchain(name string) (Toolchain, bool) {
	for _, tc := range p.Toolchains {
		if tc.Name == name {
			return tc, true
		}
	}
	return Toolchain{}, false
}

// AllEntries returns the platform's general deps followed by the selected
// toolchain's deps, in manifest order. This is the install and validation
// order.
func (p *Platform) AllEntries(toolchain string) []Entry {
	out := make([]Entry, 0, len(p.Deps))
	out = append(out, p.Deps...)
	if tc, ok := p.Toolchain(toolchain); ok {
		out = append(out, tc.Deps...)
	}
	return out
}
