// Package ui holds terminal helpers for the CLI: color rendering and the
// choice of log handler.
package ui

import "fmt"

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorFail   = 203 // red
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderOutcome colors a job outcome status: green for ok, red otherwise.
func RenderOutcome(status string) string {
	if status == "ok" {
		return render(colorOK, status)
	}
	return render(colorFail, status)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
