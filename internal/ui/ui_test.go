package ui

import (
	"strings"
	"testing"
)

func TestColorEnabled(t *testing.T) {
	for _, tc := range []struct {
		name string
		env  map[string]string
		tty  bool
		want bool
	}{
		{"TTY", nil, true, true},
		{"Pipe", nil, false, false},
		{"NoColorBeatsForce", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, true, false},
		{"ForceOnPipe", map[string]string{"CLICOLOR_FORCE": "1"}, false, true},
		{"ClicolorZero", map[string]string{"CLICOLOR": "0"}, true, false},
		{"ClicolorOne", map[string]string{"CLICOLOR": "1"}, false, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			getenv := func(k string) string { return tc.env[k] }
			if got := colorEnabled(getenv, tc.tty); got != tc.want {
				t.Errorf("colorEnabled = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestShouldUseColor_NoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if ShouldUseColor() {
		t.Error("ShouldUseColor() = true with NO_COLOR set")
	}
}

func TestRender(t *testing.T) {
	old := noColor
	t.Cleanup(func() { noColor = old })

	noColor = false
	if got := RenderRuleType("prohibition"); got != "\x1b[38;5;203mprohibition\x1b[0m" {
		t.Errorf("RenderRuleType(prohibition) = %q", got)
	}
	if got := RenderRuleType("other"); got != "other" {
		t.Errorf("RenderRuleType(other) = %q", got)
	}
	if got := RenderAccent("x"); !strings.Contains(got, "38;5;74m") {
		t.Errorf("RenderAccent = %q", got)
	}

	ForceNoColor()
	for _, fn := range []func(string) string{RenderAccent, RenderMuted, RenderCommand, RenderPass, RenderWarn, RenderFail, RenderRuleType} {
		if got := fn("obligation"); got != "obligation" {
			t.Errorf("with color disabled got %q", got)
		}
	}
}
