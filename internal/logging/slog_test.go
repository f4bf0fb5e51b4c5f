package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// records decodes the JSON lines written by a debug-level logger.
func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var r map[string]any
		if err := dec.Decode(&r); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		out = append(out, r)
	}
	return out
}

func TestSlogLogger_LevelsAndChildAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug", "json")
	ctx := context.Background()

	log.Debug(ctx, "tick", "ticks", 1)
	lobby := log.With("module", "lobby", "lobby_id", "L7")
	lobby.Info(ctx, "member joined", "user_id", "bob")
	lobby.Warn(ctx, "event dropped")
	log.Error(ctx, "save failed", "record_id", "r1")

	got := records(t, &buf)
	if len(got) != 4 {
		t.Fatalf("want 4 records, got %d", len(got))
	}
	want := []struct{ level, msg string }{
		{"DEBUG", "tick"}, {"INFO", "member joined"}, {"WARN", "event dropped"}, {"ERROR", "save failed"},
	}
	for i, w := range want {
		if got[i]["level"] != w.level || got[i]["msg"] != w.msg {
			t.Fatalf("record %d = %v, want %s %q", i, got[i], w.level, w.msg)
		}
	}
	if got[1]["module"] != "lobby" || got[1]["lobby_id"] != "L7" || got[1]["user_id"] != "bob" {
		t.Fatalf("child logger attributes missing: %v", got[1])
	}
	if _, ok := got[3]["module"]; ok {
		t.Fatalf("parent logger picked up child attributes: %v", got[3])
	}
}

func TestNew_FormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "json")
	ctx := context.Background()

	log.Info(ctx, "hidden")
	log.Warn(ctx, "shown", "lobby_id", "L1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info must be filtered at warn level:\n%s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"lobby_id":"L1"`) {
		t.Fatalf("expected json record, got:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_TextIsDefault(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "", "").Info(context.Background(), "ready", "addr", ":50051")
	if !strings.Contains(buf.String(), "msg=ready addr=:50051") {
		t.Fatalf("expected text record, got %q", buf.String())
	}
}
