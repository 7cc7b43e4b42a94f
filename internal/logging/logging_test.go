package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger")
	}

	var buf bytes.Buffer
	logger := newBufferLogger(&buf)
	ctx := WithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatal("expected stored logger")
	}
}

func TestContextIdentifiers(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithSpanID(ctx, "span-1")

	if RequestIDFromContext(ctx) != "req-1" || TraceIDFromContext(ctx) != "trace-1" || SpanIDFromContext(ctx) != "span-1" {
		t.Fatal("expected identifiers to round trip through the context")
	}
	if WithRequestID(ctx, "") != ctx {
		t.Fatal("expected empty identifier to leave the context untouched")
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Fatal("expected empty request id on a bare context")
	}
}

func TestWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), newBufferLogger(&buf))
	ctx = WithAttrs(ctx, slog.String("user_id", "u-1"))

	FromContext(ctx).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["user_id"] != "u-1" {
		t.Fatalf("expected user_id attribute got %v", entry)
	}
}

func TestSpanNestingAndFailure(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), newBufferLogger(&buf))

	ctx, parent := StartSpan(ctx, "parent")
	traceID := TraceIDFromContext(ctx)
	parentID := SpanIDFromContext(ctx)
	if traceID == "" || parentID == "" {
		t.Fatal("expected trace and span ids")
	}

	childCtx, child := StartSpan(ctx, "child", slog.String("op", "test"))
	if TraceIDFromContext(childCtx) != traceID {
		t.Fatal("expected child span to share the trace id")
	}
	if SpanIDFromContext(childCtx) == parentID {
		t.Fatal("expected child span to have its own id")
	}

	child.EndErr(errors.New("boom"))
	parent.EndErr(nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two log lines got %d: %s", len(lines), buf.String())
	}
	var failed, completed map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &failed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &completed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if failed["msg"] != "span failed" || failed["level"] != "WARN" || failed["parent_span_id"] != parentID || failed["op"] != "test" {
		t.Fatalf("unexpected failure entry %v", failed)
	}
	if completed["msg"] != "span completed" || completed["level"] != "DEBUG" {
		t.Fatalf("unexpected completion entry %v", completed)
	}

	var nilSpan *Span
	nilSpan.End()
	nilSpan.EndErr(errors.New("ignored"))
}
