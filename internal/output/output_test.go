package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/redline/internal/auth"
	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/gauge"
	"github.com/theirongolddev/redline/internal/graph"
	"github.com/theirongolddev/redline/internal/refresh"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", FormatText, true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDetectFormat(t *testing.T) {
	t.Setenv("REDLINE_OUTPUT_FORMAT", "yaml")
	if f, err := DetectFormat("json"); err != nil || f != FormatJSON {
		t.Errorf("expected explicit flag to win, got %v (%v)", f, err)
	}
	if f, err := DetectFormat(""); err != nil || f != FormatYAML {
		t.Errorf("expected env format yaml, got %v (%v)", f, err)
	}
	if _, err := DetectFormat("xml"); err == nil {
		t.Error("expected error for unknown flag format")
	}

	// Tests do not run with a terminal on stdout.
	t.Setenv("REDLINE_OUTPUT_FORMAT", "")
	if !IsTerminal() {
		if f, _ := DetectFormat(""); f != FormatJSON {
			t.Errorf("expected JSON when piped, got %v", f)
		}
	}
}

func TestFormatterOutput(t *testing.T) {
	v := map[string]int{"total": 13}
	textFn := func(w io.Writer) error {
		_, err := io.WriteString(w, "total 13\n")
		return err
	}

	tests := []struct {
		format Format
		want   string
	}{
		{FormatText, "total 13\n"},
		{FormatJSON, "{\n  \"total\": 13\n}\n"},
		{FormatYAML, "total: 13\n"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		f := New(WithFormat(tt.format), WithWriter(&buf))
		if err := f.Output(v, textFn); err != nil {
			t.Fatalf("%v: unexpected error: %v", tt.format, err)
		}
		if buf.String() != tt.want {
			t.Errorf("%v: expected %q, got %q", tt.format, tt.want, buf.String())
		}
	}
}

func TestWriteYAMLKeepsJSONNamesAndOrder(t *testing.T) {
	v := struct {
		State   string `json:"state"`
		Enabled string `json:"enabled"`
		Count   *int   `json:"count"`
		Nested  struct {
			Key string `json:"key"`
		} `json:"nested"`
	}{State: "live", Enabled: "true"}
	v.Nested.Key = "outlook"

	var buf bytes.Buffer
	if err := WriteYAML(&buf, v); err != nil {
		t.Fatalf("WriteYAML failed: %v", err)
	}
	want := "state: live\nenabled: \"true\"\ncount: null\nnested:\n  key: outlook\n"
	if buf.String() != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, buf.String())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		hint string
	}{
		{"not signed in", &auth.Error{Op: "token", Err: auth.ErrNotSignedIn}, "NOT_SIGNED_IN", HintNotSignedIn},
		{"no client id", fmt.Errorf("login: %w", auth.ErrNoClientID), "NO_CLIENT_ID", HintNoClientID},
		{"unauthorized", graph.NewAPIError("inbox", 401, graph.ErrUnauthorized), "UNAUTHORIZED", HintUnauthorized},
		{"unavailable", graph.NewAPIError("inbox", 503, graph.ErrServerUnavailable), "API_UNAVAILABLE", HintUnavailable},
		{"plain", errors.New("boom"), "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Classify(tt.err)
			if e.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, e.Code)
			}
			if e.Hint != tt.hint {
				t.Errorf("expected hint %q, got %q", tt.hint, e.Hint)
			}
			if !errors.Is(e, tt.err) {
				t.Error("expected classified error to wrap the original")
			}
		})
	}

	if Classify(nil) != nil {
		t.Error("expected nil for nil error")
	}
	orig := NewCLIError("x").WithCode("X")
	if Classify(orig) != orig {
		t.Error("expected an existing CLIError to pass through")
	}
}

func TestClassifyAddsStatusCause(t *testing.T) {
	e := Classify(graph.NewAPIError("inbox", 503, graph.ErrServerUnavailable))
	if e.Cause != "mail API returned HTTP 503" {
		t.Errorf("expected status cause, got %q", e.Cause)
	}
}

func TestFormatCLIErrorPlain(t *testing.T) {
	e := NewCLIError("refresh failed").WithCode("TIMEOUT").WithCause("slow").WithHint("wait")
	got := FormatCLIError(e, false)
	want := "Error: refresh failed [TIMEOUT]\n  Cause: slow\n  Hint: wait\n"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestPrintErrorJSON(t *testing.T) {
	var buf bytes.Buffer
	PrintError(&buf, &auth.Error{Op: "token", Err: auth.ErrNotSignedIn}, FormatJSON)

	var got map[string]string
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if got["code"] != "NOT_SIGNED_IN" {
		t.Errorf("expected code NOT_SIGNED_IN, got %q", got["code"])
	}
	if got["hint"] != HintNotSignedIn {
		t.Errorf("expected hint, got %q", got["hint"])
	}
}

var (
	testChannels = []Channel{
		{Key: "outlook", Label: "Outlook", Thresholds: gauge.Thresholds{Max: 60, Redline: 25}, Link: "https://outlook.office.com/mail/"},
		{Key: "slack", Label: "Slack", Thresholds: gauge.Thresholds{Max: 25, Redline: 10}},
		{Key: "hubspot", Label: "HubSpot", Thresholds: gauge.Thresholds{Max: 25, Redline: 10}},
		{Key: "monday", Label: "Monday", Thresholds: gauge.Thresholds{Max: 25, Redline: 10}},
	}
	testTotal = Channel{Label: "Total", Thresholds: gauge.Thresholds{Max: 100, Redline: 35}}
)

func liveSnapshot() refresh.Snapshot {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return refresh.Snapshot{
		State:     refresh.StateLive,
		Identity:  "oid.tid",
		Username:  "ada@example.com",
		CycleID:   "cycle-1",
		Counts:    &counter.Counts{Values: map[counter.Key]int{"outlook": 10, "slack": 2, "hubspot": 0, "monday": 1}, Total: 13},
		UpdatedAt: updated,
		Latency:   312 * time.Millisecond,
	}
}

func TestNewStatusLive(t *testing.T) {
	s := NewStatus(liveSnapshot(), testChannels, testTotal)

	if s.State != "live" || s.Mode != "ACTIVE" {
		t.Errorf("expected live/ACTIVE, got %s/%s", s.State, s.Mode)
	}
	if s.Driver != "ada@example.com" {
		t.Errorf("expected driver username, got %q", s.Driver)
	}
	if s.Total.Count == nil || *s.Total.Count != 13 {
		t.Fatalf("expected total 13, got %v", s.Total.Count)
	}
	if s.Total.Key != "total" {
		t.Errorf("expected total key, got %q", s.Total.Key)
	}
	if s.Total.Delta != nil {
		t.Error("expected no delta without a baseline")
	}
	if s.Total.Caption != "New since baseline: —" {
		t.Errorf("unexpected total caption %q", s.Total.Caption)
	}
	lights := []bool{true, true, false, true}
	for i, g := range s.Channels {
		if g.Light != lights[i] {
			t.Errorf("%s: expected light %v, got %v", g.Key, lights[i], g.Light)
		}
	}
	if s.BaselineAt != nil {
		t.Error("expected no baseline time")
	}
	if s.AutoLabel != "AUTO: OFF" {
		t.Errorf("expected AUTO: OFF, got %q", s.AutoLabel)
	}
	if s.LatencyMS != 312 {
		t.Errorf("expected latency 312ms, got %d", s.LatencyMS)
	}
}

func TestNewStatusWithBaseline(t *testing.T) {
	snap := liveSnapshot()
	snap.Counts.Values["outlook"] = 15
	snap.Counts.Total = 18
	snap.Deltas = &counter.DeltaSet{Values: map[counter.Key]int{"outlook": 5, "slack": 0, "hubspot": 0, "monday": 0}, Total: 5}
	at := snap.UpdatedAt.Add(-time.Hour)
	snap.BaselineAt = &at
	snap.Auto = true
	snap.AutoInterval = time.Minute

	s := NewStatus(snap, testChannels, testTotal)
	if s.Channels[0].Caption != "Since baseline: +5" {
		t.Errorf("unexpected outlook caption %q", s.Channels[0].Caption)
	}
	if s.Total.Caption != "New since baseline: +5" {
		t.Errorf("unexpected total caption %q", s.Total.Caption)
	}
	if s.AutoLabel != "AUTO: 60s" || s.AutoInterval != "60s" {
		t.Errorf("expected AUTO: 60s, got %q / %q", s.AutoLabel, s.AutoInterval)
	}
	if s.BaselineAt == nil || !s.BaselineAt.Equal(at) {
		t.Errorf("expected baseline time %v, got %v", at, s.BaselineAt)
	}
}

func TestNewStatusError(t *testing.T) {
	snap := liveSnapshot()
	snap.State = refresh.StateError
	snap.Error = "refresh: boom"

	s := NewStatus(snap, testChannels, testTotal)
	if !s.Check || s.Mode != "CHECK" {
		t.Errorf("expected CHECK, got check=%v mode=%s", s.Check, s.Mode)
	}
	if s.Total.Count == nil || *s.Total.Count != 13 {
		t.Error("expected prior values to stay displayed")
	}
}

func TestNewStatusSignedOut(t *testing.T) {
	s := NewStatus(refresh.Snapshot{}, testChannels, testTotal)
	if s.Driver != "—" {
		t.Errorf("expected placeholder driver, got %q", s.Driver)
	}
	if s.Mode != "IDLE" {
		t.Errorf("expected IDLE, got %s", s.Mode)
	}
	for _, g := range s.Channels {
		if g.Count != nil || g.Zone != "" {
			t.Errorf("%s: expected no value before the first refresh", g.Key)
		}
	}
}

func TestRenderStatusPlain(t *testing.T) {
	snap := liveSnapshot()
	s := NewStatus(snap, testChannels, testTotal)

	var buf bytes.Buffer
	err := RenderStatus(&buf, s, TextOptions{BarWidth: 10, Now: snap.UpdatedAt.Add(2 * time.Minute)})
	if err != nil {
		t.Fatalf("RenderStatus failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"redline  ACTIVE  driver: ada@example.com",
		"● Outlook   10/60   ██░░░░░░░░  Since baseline: —",
		"○ HubSpot    0/25   ░░░░░░░░░░",
		"● Total     13/100  █░░░░░░░░░  New since baseline: —",
		"Updated: 2 minutes ago (312ms)",
		"Baseline: —",
		"AUTO: OFF",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("expected no escape codes without color")
	}
}

func TestRenderStatusShowsCheck(t *testing.T) {
	snap := liveSnapshot()
	snap.State = refresh.StateError
	snap.Error = "refresh: mail API unavailable"

	var buf bytes.Buffer
	if err := RenderStatus(&buf, NewStatus(snap, testChannels, testTotal), TextOptions{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "CHECK refresh: mail API unavailable") {
		t.Errorf("expected CHECK line, got:\n%s", buf.String())
	}
}

func TestAutoLabel(t *testing.T) {
	if got := AutoLabel(false, time.Minute); got != "AUTO: OFF" {
		t.Errorf("expected AUTO: OFF, got %q", got)
	}
	if got := AutoLabel(true, 15*time.Minute); got != "AUTO: 15m" {
		t.Errorf("expected AUTO: 15m, got %q", got)
	}
}
