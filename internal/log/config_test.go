package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"text", FormatText},
		{"logfmt", FormatText},
		{"", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseFormat(tt.input); got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	if c.Level != LevelWarn {
		t.Errorf("expected warn level, got %v", c.Level)
	}
	if c.Format != FormatText {
		t.Errorf("expected text format, got %v", c.Format)
	}
	if c.Output.Writer() != os.Stderr {
		t.Error("expected stderr output")
	}
	if c.ServiceName != "capboard" {
		t.Errorf("unexpected service name %q", c.ServiceName)
	}
}

func TestOutputZeroValueWritesToStderr(t *testing.T) {
	var o Output
	if o.Writer() != os.Stderr {
		t.Error("zero Output should fall back to stderr")
	}
	if err := o.Close(); err != nil {
		t.Errorf("Close on zero Output: %v", err)
	}
}

func TestOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "capboard.log")

	out, err := OutputFile(path)
	if err != nil {
		t.Fatalf("OutputFile: %v", err)
	}

	logger := New(Config{Level: LevelInfo, Format: FormatText, Output: out})
	logger.Info("catalog refreshed", "cards", 3)
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "catalog refreshed") {
		t.Errorf("log file missing record: %s", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600, got %v", info.Mode().Perm())
	}
}
