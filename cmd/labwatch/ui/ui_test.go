package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func plainProfile(t *testing.T) {
	t.Helper()
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestKeyValuesAlignment(t *testing.T) {
	plainProfile(t)
	out := KeyValues("  ",
		KV("lab", "demo"),
		KV("topology", "/labs/demo.clab.yml"),
	)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	// Values line up on the same column.
	if i, j := strings.Index(lines[0], "demo"), strings.Index(lines[1], "/labs/"); i != j {
		t.Errorf("misaligned: %q vs %q", lines[0], lines[1])
	}
}

func TestMessageHelpers(t *testing.T) {
	plainProfile(t)
	tests := []struct {
		got  string
		want string
	}{
		{SuccessMsg("wrote %s", "x"), "✓ wrote x"},
		{WarnMsg("degraded"), "! degraded"},
		{ErrorMsg("boom: %d", 3), "✗ boom: 3"},
		{InfoMsg("serving"), "● serving"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestTableContainsCells(t *testing.T) {
	plainProfile(t)
	out := Table([]string{"Name", "State"}, [][]string{{"r1", "running"}, {"r2", "exited"}})
	for _, cell := range []string{"Name", "State", "r1", "running", "r2", "exited"} {
		if !strings.Contains(out, cell) {
			t.Errorf("table missing %q:\n%s", cell, out)
		}
	}
}
