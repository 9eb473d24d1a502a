package ipgate

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
)

type loggerTestContextKey string

type capturedLogEntry struct {
	ctx   context.Context
	msg   string
	attrs map[string]any
}

type capturedLogger struct {
	mu      sync.Mutex
	entries []capturedLogEntry
}

func (l *capturedLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, capturedLogEntry{
		ctx:   ctx,
		msg:   msg,
		attrs: attrsToMap(args),
	})
}

func (l *capturedLogger) snapshot() []capturedLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]capturedLogEntry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

func attrsToMap(args []any) map[string]any {
	attrs := make(map[string]any)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs[key] = args[i+1]
	}
	return attrs
}

func assertAttr(t *testing.T, attrs map[string]any, key string, want any) {
	t.Helper()

	got, ok := attrs[key]
	if !ok {
		t.Fatalf("missing %q attr", key)
	}

	if got != want {
		t.Fatalf("%s attr = %v, want %v", key, got, want)
	}
}

func TestLogging_RejectionCarriesRequestContext(t *testing.T) {
	logger := &capturedLogger{}
	filter := mustNewFilter(t,
		TrustedProxyDepth(1),
		Allow("203.0.113.7"),
		WithLogger(logger),
	)

	ctx := context.WithValue(context.Background(), loggerTestContextKey("trace_id"), "trace-42")
	req := newTestRequest("10.0.0.5:4711", "/callbacks/transactions").WithContext(ctx)

	filter.Authorize(req)

	entries := logger.snapshot()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}

	entry := entries[0]
	if got := entry.ctx.Value(loggerTestContextKey("trace_id")); got != "trace-42" {
		t.Fatalf("context trace_id = %v, want trace-42", got)
	}
	if entry.msg != rejectionLogMessage {
		t.Fatalf("message = %q, want %q", entry.msg, rejectionLogMessage)
	}

	assertAttr(t, entry.attrs, "event", ReasonChainTooShort)
	assertAttr(t, entry.attrs, "header", DefaultForwardedHeader)
	assertAttr(t, entry.attrs, "path", "/callbacks/transactions")
	assertAttr(t, entry.attrs, "remote_addr", "10.0.0.5:4711")
	assertAttr(t, entry.attrs, "resolved", "")
}

func TestLogging_NotAllowedIncludesResolvedAddress(t *testing.T) {
	logger := &capturedLogger{}
	filter := mustNewFilter(t,
		TrustedProxyDepth(1),
		Allow("203.0.113.7"),
		WithLogger(logger),
	)

	filter.Authorize(newTestRequest("10.0.0.5:4711", "/transactions", "198.51.100.9"))

	entries := logger.snapshot()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}

	assertAttr(t, entries[0].attrs, "event", ReasonNotAllowed)
	assertAttr(t, entries[0].attrs, "resolved", "198.51.100.9")
}

func TestLogging_AuthorizedIsSilent(t *testing.T) {
	logger := &capturedLogger{}
	filter := mustNewFilter(t,
		TrustedProxyDepth(1),
		Allow("203.0.113.7"),
		WithLogger(logger),
	)

	filter.Authorize(newTestRequest("10.0.0.5:4711", "/", "203.0.113.7"))

	if entries := logger.snapshot(); len(entries) != 0 {
		t.Fatalf("log entries = %d, want 0", len(entries))
	}
}

func TestLogging_SlogLoggerSatisfiesInterface(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	filter := mustNewFilter(t, WithLogger(logger))
	filter.Authorize(newTestRequest("198.51.100.9:1", "/health"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("json.Unmarshal() error = %v (output=%q)", err, buf.String())
	}

	if record["level"] != "WARN" {
		t.Fatalf("level = %v, want WARN", record["level"])
	}
	if record["event"] != ReasonNotAllowed {
		t.Fatalf("event = %v, want %s", record["event"], ReasonNotAllowed)
	}
	if record["resolved"] != "198.51.100.9" {
		t.Fatalf("resolved = %v, want 198.51.100.9", record["resolved"])
	}
}
