package ui

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const (
	envNoColor       = "NO_COLOR"
	envNoInteraction = "BERTH_NO_INTERACTION"
	envCI            = "CI"
	envTerm          = "TERM"
)

var colorState struct {
	mu          sync.Mutex
	initialized bool
	color       bool
}

// Configure selects the lipgloss colour profile once per process. Colour is
// disabled by the flag, NO_COLOR, BERTH_NO_INTERACTION, CI, a dumb terminal,
// or stdout not being a terminal.
func Configure(noColor bool) {
	color := detectColor(noColor)

	colorState.mu.Lock()
	colorState.initialized = true
	colorState.color = color
	colorState.mu.Unlock()

	if color {
		lipgloss.SetColorProfile(termenv.NewOutput(os.Stdout).ColorProfile())
		return
	}
	lipgloss.SetColorProfile(termenv.Ascii)
}

// ColorEnabled reports the configured mode, configuring with defaults on
// first use.
func ColorEnabled() bool {
	colorState.mu.Lock()
	initialized, color := colorState.initialized, colorState.color
	colorState.mu.Unlock()
	if initialized {
		return color
	}
	Configure(false)
	return ColorEnabled()
}

func detectColor(noColor bool) bool {
	if noColor {
		return false
	}
	if _, set := os.LookupEnv(envNoColor); set {
		return false
	}
	if envTruthy(envNoInteraction) || envTruthy(envCI) {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(envTerm)), "dumb") {
		return false
	}
	return isTerminal(os.Stdout)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func envTruthy(key string) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
