package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/odrlfrag/internal/ui"
)

// Flag lines look like `  -s, --strategy string   description (default "gateway")`.
var (
	reFlag    = regexp.MustCompile(`^(\s+)((?:-\w, )?--[\w-]+)( [a-zA-Z]+)?(\s{2,}.*)$`)
	reDefault = regexp.MustCompile(`\(default [^)]*\)`)
)

// colorizedHelpFunc renders cobra's usage text and colors it when stdout
// supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		out := cmd.OutOrStdout()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelpOutput(buf.String()))
	}
}

// colorizeHelpOutput styles cobra's usage text line by line: section
// headers in the accent color, command names inside command sections,
// flag names with muted types and defaults.
func colorizeHelpOutput(s string) string {
	lines := strings.Split(s, "\n")
	inCommands := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			continue
		case line[0] != ' ' && strings.HasSuffix(trimmed, ":"):
			inCommands = !strings.Contains(trimmed, "Flags") && trimmed != "Usage:" && trimmed != "Examples:" && trimmed != "Aliases:"
			lines[i] = ui.RenderAccent(trimmed)
		case reFlag.MatchString(line):
			m := reFlag.FindStringSubmatch(line)
			rest := reDefault.ReplaceAllStringFunc(m[4], ui.RenderMuted)
			typ := m[3]
			if typ != "" {
				typ = ui.RenderMuted(typ)
			}
			lines[i] = m[1] + ui.RenderCommand(m[2]) + typ + rest
		case inCommands && strings.HasPrefix(line, "  ") && !strings.HasPrefix(line, "   "):
			name, desc, ok := strings.Cut(trimmed, " ")
			if ok {
				lines[i] = "  " + ui.RenderCommand(name) + " " + desc
			}
		}
	}
	return strings.Join(lines, "\n")
}
