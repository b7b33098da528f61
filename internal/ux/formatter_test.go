package ux

import (
	"bytes"
	"strings"
	"testing"

	"github.com/felixgeelhaar/capboard/internal/catalog"
	"github.com/felixgeelhaar/capboard/internal/errors"
)

var sampleOption = catalog.Option{Value: "Cloud Architecture", Label: "Cloud Architecture (Technology)"}

func TestNewFormatter(t *testing.T) {
	for _, format := range []string{"json", "yaml", "text", ""} {
		if _, err := NewFormatter(format, nil); err != nil {
			t.Errorf("NewFormatter(%q) error = %v", format, err)
		}
	}

	_, err := NewFormatter("xml", nil)
	if errors.CodeOf(err) != errors.ErrCodeConfigInvalid {
		t.Errorf("NewFormatter(\"xml\") code = %q, want %q", errors.CodeOf(err), errors.ErrCodeConfigInvalid)
	}
}

func TestStructuredFormatters(t *testing.T) {
	tests := []struct {
		format  string
		compact bool
		want    []string
		lines   int
	}{
		{format: "json", want: []string{`"value": "Cloud Architecture"`, `"label": "Cloud Architecture (Technology)"`}},
		{format: "json", compact: true, want: []string{`{"value":"Cloud Architecture"`}, lines: 1},
		{format: "yaml", want: []string{"value: Cloud Architecture", "label: Cloud Architecture (Technology)"}},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		formatter, err := NewFormatter(tt.format, &FormatterOptions{Writer: &buf, Compact: tt.compact})
		if err != nil {
			t.Fatalf("NewFormatter(%q) error = %v", tt.format, err)
		}
		if err := formatter.Format(sampleOption); err != nil {
			t.Fatalf("Format() error = %v", err)
		}

		output := buf.String()
		for _, want := range tt.want {
			if !strings.Contains(output, want) {
				t.Errorf("%s output missing %q: %s", tt.format, want, output)
			}
		}
		if tt.lines > 0 && strings.Count(output, "\n") > tt.lines {
			t.Errorf("compact %s should be one line, got: %s", tt.format, output)
		}
	}
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name    string
		data    interface{}
		want    string
		wantErr bool
	}{
		{
			name: "string",
			data: "Logged out",
			want: "Logged out",
		},
		{
			name: "texter",
			data: CardText{Card: catalog.Card{Name: "Agile Coaching", Capacity: 20}},
			want: "Agile Coaching\nCapacity: 20\nConsultants (0): none",
		},
		{
			name: "empty catalog",
			data: CatalogText{},
			want: "No capabilities.",
		},
		{
			name:    "plain struct",
			data:    sampleOption,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			formatter, err := NewFormatter("text", &FormatterOptions{Writer: &buf, NoColor: true})
			if err != nil {
				t.Fatalf("NewFormatter() error = %v", err)
			}

			err = formatter.Format(tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Format() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !strings.Contains(err.Error(), "--format json") {
					t.Errorf("Format() error = %v, want a hint to use json", err)
				}
				return
			}
			if output := trimLines(buf.String()); output != tt.want {
				t.Errorf("Format() output = %q, want %q", output, tt.want)
			}
		})
	}
}

// trimLines drops the padding lipgloss adds to the right of each line.
func trimLines(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}
