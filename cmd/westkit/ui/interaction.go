package ui

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const (
	envNoColor = "NO_COLOR"
	envCI      = "CI"
	envTerm    = "TERM"
)

var colorOnce sync.Once

// ConfigureColor resolves the lipgloss color profile once per process.
// Plain output is forced for CI, dumb terminals and piped stderr.
func ConfigureColor() {
	colorOnce.Do(func() {
		if plainOutput() {
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
		lipgloss.SetColorProfile(termenv.ColorProfile())
	})
}

func plainOutput() bool {
	if envTruthy(envCI) || os.Getenv(envNoColor) != "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(envTerm)), "dumb") {
		return true
	}
	return !stderrIsTerminal()
}

func stderrIsTerminal() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func envTruthy(key string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
