package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)
	defer InitWithWriter(&buf, "INFO", "text", false)

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Error("debug message should be filtered at WARN level")
	}
	if strings.Contains(out, "info message") {
		t.Error("info message should be filtered at WARN level")
	}
	if !strings.Contains(out, "warn message") {
		t.Error("warn message should be logged at WARN level")
	}
	if !strings.Contains(out, "error message") {
		t.Error("error message should be logged at WARN level")
	}
}

func TestStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	Info("upload complete", "share", "docs", "bytes", 1024)

	out := buf.String()
	if !strings.Contains(out, "share=docs") {
		t.Errorf("expected share=docs in output, got: %s", out)
	}
	if !strings.Contains(out, "bytes=1024") {
		t.Errorf("expected bytes=1024 in output, got: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)
	defer InitWithWriter(&buf, "INFO", "text", false)

	Info("request served", "status", 200)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if record["msg"] != "request served" {
		t.Errorf("expected msg %q, got %v", "request served", record["msg"])
	}
	if record["status"] != float64(200) {
		t.Errorf("expected status 200, got %v", record["status"])
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	lc := NewLogContext("192.168.1.10")
	lc = lc.WithShare("media").WithRequest("req-1", "GET", "/media/movie.mkv")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "download started")

	out := buf.String()
	for _, want := range []string{"request_id=req-1", "share=media", "client_ip=192.168.1.10", "method=GET"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestContextFieldsNilContext(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	// No LogContext attached: must not panic, fields simply absent.
	InfoCtx(context.Background(), "plain message", "k", "v")

	if !strings.Contains(buf.String(), "plain message") {
		t.Error("message missing from output")
	}
}

func TestInvalidLevelIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	SetLevel("NOPE")
	Info("still info")

	if !strings.Contains(buf.String(), "still info") {
		t.Error("invalid SetLevel must leave previous level in place")
	}
}
