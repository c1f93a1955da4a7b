package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewTagsRecordsWithService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "worker", "info")
	logger.Info("job.completed", "job_id", "job-1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["service"] != "worker" || record["job_id"] != "job-1" || record["msg"] != "job.completed" {
		t.Fatalf("unexpected record: %v", record)
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "api", "warn")
	logger.Info("ignored")
	if buf.Len() != 0 {
		t.Fatalf("expected info record to be dropped, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		" error ": slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
