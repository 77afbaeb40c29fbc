package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/theirongolddev/redline/internal/auth"
	"github.com/theirongolddev/redline/internal/counter"
	"github.com/theirongolddev/redline/internal/events"
	"github.com/theirongolddev/redline/internal/gauge"
	"github.com/theirongolddev/redline/internal/graph"
	"github.com/theirongolddev/redline/internal/output"
	"github.com/theirongolddev/redline/internal/refresh"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeSession struct {
	mu         sync.Mutex
	bus        *events.EventBus
	snap       refresh.Snapshot
	next       *refresh.Snapshot
	refreshErr error
	autoOn     bool
	autoEvery  time.Duration
	baselines  int
}

func newFakeSession() *fakeSession {
	return &fakeSession{bus: events.NewEventBus(10)}
}

func (f *fakeSession) Snapshot() refresh.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.snap
	s.Auto = f.autoOn
	s.AutoInterval = f.autoEvery
	return s
}

func (f *fakeSession) RefreshOnce(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return f.refreshErr
	}
	if f.next != nil {
		f.snap = *f.next
	}
	return nil
}

func (f *fakeSession) SetBaselineFromCurrent() (counter.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.baselines++
	at := time.Now()
	f.snap.BaselineAt = &at
	return counter.Snapshot{CapturedAt: at}, nil
}

func (f *fakeSession) StartAutoRefresh(interval time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoOn = true
	f.autoEvery = interval
	return nil
}

func (f *fakeSession) StopAutoRefresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoOn = false
	f.autoEvery = 0
}

func (f *fakeSession) Subscribe(fn events.EventHandler) events.UnsubscribeFunc {
	return f.bus.SubscribeAll(fn)
}

func (f *fakeSession) History(limit int) []events.BusEvent {
	return f.bus.History(limit)
}

func liveSnapshot(total int) refresh.Snapshot {
	return refresh.Snapshot{
		State:     refresh.StateLive,
		Identity:  "oid.tid",
		Username:  "ada@example.com",
		Counts:    &counter.Counts{Values: map[counter.Key]int{"outlook": total - 3, "slack": 2, "hubspot": 0, "monday": 1}, Total: total},
		UpdatedAt: time.Now(),
		Latency:   80 * time.Millisecond,
	}
}

func testOptions() Options {
	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})
	return Options{
		Channels: []output.Channel{
			{Key: "outlook", Label: "Outlook", Thresholds: gauge.Thresholds{Max: 60, Redline: 25}, Link: "https://outlook.office.com/mail/"},
			{Key: "slack", Label: "Slack", Thresholds: gauge.Thresholds{Max: 25, Redline: 10}},
			{Key: "hubspot", Label: "HubSpot", Thresholds: gauge.Thresholds{Max: 25, Redline: 10}},
			{Key: "monday", Label: "Monday", Thresholds: gauge.Thresholds{Max: 25, Redline: 10}},
		},
		Total:        output.Channel{Label: "Total", Thresholds: gauge.Thresholds{Max: 100, Redline: 35}},
		AutoInterval: time.Minute,
		Log:          logrus.NewEntry(log),
	}
}

func newTestServer(t *testing.T, f *fakeSession) *Server {
	t.Helper()
	s := New(f, testOptions())
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) output.Status {
	t.Helper()
	var st output.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v\n%s", err, w.Body.String())
	}
	return st
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, newFakeSession())
	w := do(t, s, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestStateSignedOut(t *testing.T) {
	s := newTestServer(t, newFakeSession())
	w := do(t, s, http.MethodGet, "/api/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	st := decodeStatus(t, w)
	if st.State != "idle" || st.Mode != "IDLE" || st.Driver != "—" {
		t.Errorf("unexpected status %+v", st)
	}
	if len(st.Channels) != 4 {
		t.Fatalf("expected 4 channels, got %d", len(st.Channels))
	}
	if st.Total.Count != nil {
		t.Errorf("expected null total before the first refresh, got %d", *st.Total.Count)
	}
	if st.AutoLabel != "AUTO: OFF" {
		t.Errorf("expected AUTO: OFF, got %q", st.AutoLabel)
	}
}

func TestRefresh(t *testing.T) {
	f := newFakeSession()
	next := liveSnapshot(13)
	f.next = &next
	s := newTestServer(t, f)

	w := do(t, s, http.MethodPost, "/api/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	st := decodeStatus(t, w)
	if st.Total.Count == nil || *st.Total.Count != 13 {
		t.Errorf("expected total 13, got %+v", st.Total)
	}
	if st.Mode != "ACTIVE" || st.Driver != "ada@example.com" {
		t.Errorf("unexpected mode/driver %q %q", st.Mode, st.Driver)
	}
}

func TestEvents(t *testing.T) {
	f := newFakeSession()
	s := newTestServer(t, f)
	f.bus.PublishSync(events.NewRefreshStartedEvent("oid.tid", "c1"))
	f.bus.PublishSync(events.NewSignedOutEvent("oid.tid"))

	w := do(t, s, http.MethodGet, "/api/events?limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0]["type"] != events.TypeSignedOut {
		t.Errorf("expected newest signed_out event only, got %v", body.Events)
	}

	w = do(t, s, http.MethodGet, "/api/events", "")
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 2 {
		t.Errorf("expected 2 events, got %d", len(body.Events))
	}

	for _, bad := range []string{"0", "-1", "many"} {
		if w := do(t, s, http.MethodGet, "/api/events?limit="+bad, ""); w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", bad, w.Code)
		}
	}
}

func TestRefreshErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"busy", refresh.ErrBusy, http.StatusConflict, ""},
		{"stale", refresh.ErrStale, http.StatusConflict, ""},
		{"not signed in", &auth.Error{Op: "silent", Err: auth.ErrNotSignedIn}, http.StatusUnauthorized, "NOT_SIGNED_IN"},
		{"rejected token", graph.NewAPIError("inbox", 401, graph.ErrUnauthorized), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"timeout", graph.NewAPIError("folders", 0, graph.ErrTimeout), http.StatusGatewayTimeout, "TIMEOUT"},
		{"unavailable", graph.NewAPIError("inbox", 503, graph.ErrServerUnavailable), http.StatusServiceUnavailable, "API_UNAVAILABLE"},
		{"other api error", graph.NewAPIError("inbox", 404, fmt.Errorf("not found")), http.StatusBadGateway, ""},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeSession()
			f.refreshErr = tt.err
			s := newTestServer(t, f)

			w := do(t, s, http.MethodPost, "/api/refresh", "")
			if w.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, w.Code)
			}
			var body output.CLIError
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if body.Message == "" {
				t.Error("expected an error message")
			}
			if body.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, body.Code)
			}
		})
	}
}

func TestBaseline(t *testing.T) {
	f := newFakeSession()
	f.snap = liveSnapshot(13)
	s := newTestServer(t, f)

	w := do(t, s, http.MethodPost, "/api/baseline", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if f.baselines != 1 {
		t.Errorf("expected one baseline set, got %d", f.baselines)
	}
	if st := decodeStatus(t, w); st.BaselineAt == nil {
		t.Error("expected baseline_at in response")
	}
}

func TestAuto(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		status   int
		wantOn   bool
		interval time.Duration
		label    string
	}{
		{"default interval", `{"enabled":true}`, http.StatusOK, true, time.Minute, "AUTO: 60s"},
		{"bare seconds", `{"enabled":true,"interval":"30"}`, http.StatusOK, true, 30 * time.Second, "AUTO: 30s"},
		{"units", `{"enabled":true,"interval":"2m"}`, http.StatusOK, true, 2 * time.Minute, "AUTO: 120s"},
		{"off", `{"enabled":false}`, http.StatusOK, false, 0, "AUTO: OFF"},
		{"missing enabled", `{"interval":"30s"}`, http.StatusBadRequest, false, 0, ""},
		{"bad interval", `{"enabled":true,"interval":"soon"}`, http.StatusBadRequest, false, 0, ""},
		{"not json", `enabled`, http.StatusBadRequest, false, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeSession()
			s := newTestServer(t, f)

			w := do(t, s, http.MethodPost, "/api/auto", tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if f.autoOn != tt.wantOn || f.autoEvery != tt.interval {
				t.Errorf("expected auto=%v every %v, got %v every %v", tt.wantOn, tt.interval, f.autoOn, f.autoEvery)
			}
			if tt.status == http.StatusOK {
				if st := decodeStatus(t, w); st.AutoLabel != tt.label {
					t.Errorf("expected %q, got %q", tt.label, st.AutoLabel)
				}
			}
		})
	}
}

func TestIndexPage(t *testing.T) {
	f := newFakeSession()
	f.snap = liveSnapshot(1013)
	s := newTestServer(t, f)

	w := do(t, s, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"<strong>REDLINE</strong>",
		`href="https://outlook.office.com/mail/"`,
		"1,010/60",
		"1,013/100",
		"driver: <span id=\"driver\">ada@example.com</span>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected page to contain %q", want)
		}
	}
}

func TestWebsocketStream(t *testing.T) {
	f := newFakeSession()
	s := newTestServer(t, f)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() output.Status {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var st output.Status
		if err := conn.ReadJSON(&st); err != nil {
			t.Fatalf("read: %v", err)
		}
		return st
	}

	if st := read(); st.State != "idle" {
		t.Errorf("expected idle first message, got %q", st.State)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Hub().Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	live := liveSnapshot(13)
	f.mu.Lock()
	f.snap = live
	f.mu.Unlock()
	f.bus.PublishSync(events.NewRefreshCompletedEvent("oid.tid", "c1", *live.Counts, nil, nil, 0))

	st := read()
	if st.State != "live" || st.Total.Count == nil || *st.Total.Count != 13 {
		t.Errorf("expected live total 13, got %+v", st)
	}
}

func TestHubDropsSlowClients(t *testing.T) {
	h := NewHub(logrus.NewEntry(logrus.New()))
	c := &client{send: make(chan []byte, 1)}
	if !h.add(c) {
		t.Fatal("expected client to be added")
	}

	h.Broadcast(map[string]int{"n": 1})
	h.Broadcast(map[string]int{"n": 2})

	if h.Len() != 0 {
		t.Errorf("expected slow client dropped, got %d clients", h.Len())
	}
	if msg := <-c.send; string(msg) != `{"n":1}` {
		t.Errorf("expected first message kept, got %s", msg)
	}
	if _, ok := <-c.send; ok {
		t.Error("expected send channel closed")
	}
}

func TestHubRefusesAfterClose(t *testing.T) {
	h := NewHub(logrus.NewEntry(logrus.New()))
	h.Close()
	if h.add(&client{send: make(chan []byte, 1)}) {
		t.Error("expected add to fail after Close")
	}
}
