package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("transport")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("connected", "remoteAddr", "127.0.0.1:52140")

	out := buf.String()
	if strings.Contains(out, `msg="INFO connected`) {
		t.Fatalf("unexpected nested severity prefix in message: %s", out)
	}
	if !strings.Contains(out, "msg=connected") {
		t.Fatalf("expected plain connected message, got: %s", out)
	}
	if !strings.Contains(out, "component=transport") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "remoteAddr=127.0.0.1:52140") {
		t.Fatalf("expected remoteAddr field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("broker")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestInitJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init("json", "info", &buf)

	L("broker").Info("session created", "sessionId", "focus-room")

	out := buf.String()
	if !strings.Contains(out, `"component":"broker"`) {
		t.Fatalf("expected JSON component field, got: %s", out)
	}
	if !strings.Contains(out, `"sessionId":"focus-room"`) {
		t.Fatalf("expected JSON sessionId field, got: %s", out)
	}
}

func TestWithSessionAttachesID(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger := WithSession(L("broker"), "focus-room")
	logger.Info("joined")

	out := buf.String()
	if !strings.Contains(out, "sessionId=focus-room") {
		t.Fatalf("expected sessionId field, got: %s", out)
	}
}

func TestFromContextFallsBack(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) == nil {
		t.Fatal("FromContext returned nil for empty context")
	}

	logger := L("httpapi")
	ctx = NewContext(ctx, logger)
	if FromContext(ctx) != logger {
		t.Fatal("FromContext did not return the stored logger")
	}
}
