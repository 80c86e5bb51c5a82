package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	Get().Info(ctx, "score submitted",
		String("entry", "e1"),
		Int("attempt", 2),
		Bool("retried", true),
		Duration("backoff", 50*time.Millisecond),
	)

	out := buf.String()
	for _, want := range []string{"score submitted", "entry=e1", "attempt=2", "retried=true", "backoff=50ms", "source="} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output %q", want, out)
		}
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	ctx := context.Background()

	Get().Debug(ctx, "hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug output should be suppressed at info level")
	}

	if err := SetLevelString("debug"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Get().Debug(ctx, "visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug output should appear at debug level")
	}

	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
	for _, lvl := range []string{"", "info", "WARN", "warning", "error"} {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("level %q: unexpected error: %v", lvl, err)
		}
	}
}

func TestLoggerJSONNamedWith(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithWriter(&buf), WithJSON(true)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	l := Named("scoring").With(String("contest", "c1"))
	l.Warn(context.Background(), "lock contention", Error(errors.New("held")))

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "lock contention" {
		t.Errorf("unexpected msg: %v", rec["msg"])
	}
	group, ok := rec["scoring"].(map[string]any)
	if !ok {
		t.Fatalf("expected scoring group, got %v", rec)
	}
	if group["contest"] != "c1" {
		t.Errorf("expected contest field in group, got %v", group)
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info(context.Background(), "discarded", Any("k", 1))
	if l.Named("x") == nil {
		t.Error("named nop logger should not be nil")
	}
}
