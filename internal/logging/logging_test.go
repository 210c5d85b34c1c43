package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestWithComponentAddsAttribute(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	SetOutput(&buf)
	defer Init()

	WarnWithComponent(ComponentExport, "document skipped", "assignment_id", "a1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["component"] != ComponentExport {
		t.Errorf("component = %v, want %q", entry["component"], ComponentExport)
	}
	if entry["assignment_id"] != "a1" {
		t.Errorf("assignment_id = %v", entry["assignment_id"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"WARNING": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"bogus":   "INFO",
	}
	for in, want := range tests {
		if got := parseLevel(in).String(); got != want {
			t.Errorf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
