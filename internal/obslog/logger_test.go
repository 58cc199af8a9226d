package obslog

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerFramesLines(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger("info", &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hello", String("k", "v"))

	out := buf.String()
	if !strings.HasPrefix(out, "\x01info\x02") {
		t.Fatalf("expected frame prefix, got %q", out)
	}
	if !strings.Contains(out, `"msg":"hello"`) {
		t.Fatalf("expected JSON body, got %q", out)
	}
}

func TestNewLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger("warn", &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("should be filtered")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}
	log.Warn("should pass")
	if buf.Len() == 0 {
		t.Fatal("expected warn line to be written")
	}
}
