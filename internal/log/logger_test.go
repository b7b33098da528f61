package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/capboard/internal/errors"
)

func newJSONLogger(buf *bytes.Buffer, level Level) *Logger {
	return New(Config{Level: level, Format: FormatJSON, Output: NewOutput(buf)})
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, buf.String())
	}
	return entry
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() > 0 {
		t.Errorf("expected no output for debug/info at warn level, got: %s", buf.String())
	}

	logger.Warn("warn message")
	if buf.Len() == 0 {
		t.Error("expected output for warn message")
	}
}

func TestJSONFormatOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelInfo)

	logger.Info("request completed", "method", "GET", "status", 200)

	entry := decodeEntry(t, &buf)
	if entry["msg"] != "request completed" {
		t.Errorf("unexpected msg %v", entry["msg"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("unexpected level %v", entry["level"])
	}
	if entry["status"] != float64(200) {
		t.Errorf("unexpected status %v", entry["status"])
	}
}

func TestTextFormatIncludesService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Format: FormatText, Output: NewOutput(&buf), ServiceName: "capboard"})

	logger.Info("session restored", "email", "a@example.com")

	out := buf.String()
	for _, want := range []string{"session restored", "email=a@example.com", "service=capboard"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %s", want, out)
		}
	}
}

func TestWithAndWithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelInfo)

	logger.With("request_id", "123").WithGroup("http").Info("sent", "status", 401)

	entry := decodeEntry(t, &buf)
	if entry["request_id"] != "123" {
		t.Errorf("expected request_id, got %v", entry["request_id"])
	}
	group, ok := entry["http"].(map[string]interface{})
	if !ok || group["status"] != float64(401) {
		t.Errorf("expected http.status=401, got %v", entry["http"])
	}
}

func TestWithError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		wantSuggs bool
		wantCause bool
	}{
		{
			name:     "plain error",
			err:      fmt.Errorf("boom"),
			wantCode: "",
		},
		{
			name:      "coded error with suggestion",
			err:       errors.NewNotAuthenticatedError(),
			wantCode:  "AUTH-002",
			wantSuggs: true,
		},
		{
			name:      "wrapped coded error",
			err:       fmt.Errorf("refresh: %w", errors.NewTransportError("load capabilities", fmt.Errorf("eof"))),
			wantCode:  "API-002",
			wantSuggs: true,
			wantCause: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			newJSONLogger(&buf, LevelInfo).WithError(tt.err).Info("test")

			entry := decodeEntry(t, &buf)
			if _, ok := entry["error"]; !ok {
				t.Error("expected error field")
			}
			code, _ := entry["error_code"].(string)
			if code != tt.wantCode {
				t.Errorf("error_code = %q, want %q", code, tt.wantCode)
			}
			if _, ok := entry["suggestions"]; ok != tt.wantSuggs {
				t.Errorf("suggestions present = %v, want %v", ok, tt.wantSuggs)
			}
			if _, ok := entry["cause"]; ok != tt.wantCause {
				t.Errorf("cause present = %v, want %v", ok, tt.wantCause)
			}
		})
	}
}

func TestWithErrorNil(t *testing.T) {
	logger := Discard()
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestWithContextAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelInfo)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x0a},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.WithContext(ctx).Info("traced")

	entry := decodeEntry(t, &buf)
	if entry["trace_id"] != sc.TraceID().String() {
		t.Errorf("unexpected trace_id %v", entry["trace_id"])
	}
	if entry["span_id"] != sc.SpanID().String() {
		t.Errorf("unexpected span_id %v", entry["span_id"])
	}

	if logger.WithContext(context.Background()) != logger {
		t.Error("context without a span should not change the logger")
	}
}

func TestEnabled(t *testing.T) {
	logger := New(Config{Level: LevelWarn, Output: OutputDiscard()})
	ctx := context.Background()

	if logger.Enabled(ctx, LevelInfo) {
		t.Error("info should be disabled at warn")
	}
	if !logger.Enabled(ctx, LevelError) {
		t.Error("error should be enabled at warn")
	}
}
