package setup

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"westkit/internal/execx"
)

const (
	minPythonMajor = 3
	minPythonMinor = 10
)

var pythonVersionRe = regexp.MustCompile(`Python (\d+)\.(\d+)`)

// pythonCandidates lists executable names to probe, platform-typical name
// first. Windows installs register "python"; elsewhere "python" may still
// be Python 2.
func pythonCandidates() []string {
	if runtime.GOOS == "windows" {
		return []string{"python", "python3"}
	}
	return []string{"python3", "python"}
}

// checkGit verifies a runnable git, which west requires for every
// repository operation.
func checkGit(ctx context.Context, runner execx.Runner) error {
	res, err := runner.Run(ctx, "git", []string{"--version"}, execx.Options{})
	if err != nil {
		return fmt.Errorf("git is not installed or not on PATH: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("git --version exited with code %d", res.ExitCode)
	}
	return nil
}

// findPython locates a suitable interpreter among the candidates and
// returns its executable name.
func findPython(ctx context.Context, runner execx.Runner) (string, error) {
	var tried []string
	for _, name := range pythonCandidates() {
		res, err := runner.Run(ctx, name, []string{"--version"}, execx.Options{})
		if err != nil || res.ExitCode != 0 {
			tried = append(tried, name)
			continue
		}
		// Python 2 printed the version to stderr.
		out := strings.TrimSpace(res.Stdout + res.Stderr)
		major, minor, ok := parsePythonVersion(out)
		if !ok {
			tried = append(tried, fmt.Sprintf("%s (unparseable version %q)", name, out))
			continue
		}
		if major > minPythonMajor || (major == minPythonMajor && minor >= minPythonMinor) {
			return name, nil
		}
		tried = append(tried, fmt.Sprintf("%s (%d.%d)", name, major, minor))
	}
	return "", fmt.Errorf("no Python >= %d.%d found (tried %s)",
		minPythonMajor, minPythonMinor, strings.Join(tried, ", "))
}

func parsePythonVersion(out string) (major, minor int, ok bool) {
	m := pythonVersionRe.FindStringSubmatch(out)
	if m == nil {
		return 0, 0, false
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	return major, minor, true
}

// venvBinDir is where the isolated environment keeps its executables.
func venvBinDir(venvDir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvDir, "Scripts")
	}
	return filepath.Join(venvDir, "bin")
}

// createVenv builds the private Python environment and installs west into
// it, returning the environment's bin directory.
func createVenv(ctx context.Context, runner execx.Runner, python, venvDir string) (string, error) {
	res, err := runner.Run(ctx, python, []string{"-m", "venv", venvDir}, execx.Options{})
	if err != nil {
		return "", fmt.Errorf("create venv: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("create venv: %s -m venv exited %d: %s",
			python, res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	bin := venvBinDir(venvDir)
	pip := filepath.Join(bin, "pip")
	res, err = runner.Run(ctx, pip, []string{"install", "west"}, execx.Options{})
	if err != nil {
		return "", fmt.Errorf("install west: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("install west: pip exited %d: %s",
			res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return bin, nil
}
