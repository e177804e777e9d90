package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// colorEnabled decides whether to emit ANSI colors from the NO_COLOR,
// CLICOLOR_FORCE and CLICOLOR conventions, falling back to whether the
// output is a terminal.
func colorEnabled(getenv func(string) string, tty bool) bool {
	switch {
	case getenv("NO_COLOR") != "":
		return false
	case strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1":
		return true
	case strings.TrimSpace(getenv("CLICOLOR")) == "0":
		return false
	}
	return tty
}

// ShouldUseColor reports whether stdout should be colored.
func ShouldUseColor() bool {
	return colorEnabled(os.Getenv, term.IsTerminal(int(os.Stdout.Fd())))
}

// Init disables color for the process when stdout should not be colored.
func Init() {
	if !ShouldUseColor() {
		ForceNoColor()
	}
}
