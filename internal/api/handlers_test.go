package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/gwiz/internal/dispatch"
	"github.com/mattjoyce/gwiz/internal/events"
	"github.com/mattjoyce/gwiz/internal/gcode"
	"github.com/mattjoyce/gwiz/internal/log"
	"github.com/mattjoyce/gwiz/internal/metrics"
	"github.com/mattjoyce/gwiz/internal/queue"
)

const testKey = "test-key-123"

func TestMain(m *testing.M) {
	log.Setup(log.Options{Level: "ERROR"}) // Suppress logs in tests
	os.Exit(m.Run())
}

func newTestServer(t *testing.T) (*Server, *dispatch.Context, *events.Hub) {
	t.Helper()
	hub := events.NewHub(16)
	rec := metrics.New()
	dc := dispatch.NewContext(dispatch.Options{
		Machine:     "bench",
		StartPaused: true,
		Events:      hub,
		Metrics:     rec,
	})
	s := New(Config{Listen: "localhost:0", APIKey: testKey}, dc, hub, rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, dc, hub
}

func do(t *testing.T, s *Server, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func pending(dc *dispatch.Context) []string {
	var out []string
	for _, e := range dc.Snapshot(0).Pending {
		out = append(out, string(e.Command))
	}
	return out
}

func TestHandleHealthz_NoAuth(t *testing.T) {
	s, dc, _ := newTestServer(t)
	if err := dc.Enqueue("G28", queue.Tail); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	rr := do(t, s, http.MethodGet, "/healthz", "", false)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp HealthzResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Machine != "bench" || resp.Connection != "UNK" {
		t.Fatalf("unexpected healthz: %+v", resp)
	}
	if resp.Pending != 1 || resp.Running {
		t.Fatalf("expected 1 pending and paused, got %+v", resp)
	}
}

func TestProtectedRoutesRequireKey(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/snapshot"},
		{http.MethodPost, "/commands"},
		{http.MethodPost, "/control/run"},
		{http.MethodGet, "/events"},
		{http.MethodGet, "/metrics"},
	} {
		rr := do(t, s, tc.method, tc.path, "", false)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", tc.method, tc.path, rr.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/snapshot", nil)
	req.Header.Set("Authorization", "Bearer wrong-key-000")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", rr.Code)
	}
}

func TestHandleSnapshot(t *testing.T) {
	s, dc, _ := newTestServer(t)
	for _, c := range []string{"G28", "M105"} {
		if err := dc.Enqueue(gcode.Command(c), queue.Tail); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	rr := do(t, s, http.MethodGet, "/snapshot?acks=5", "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp SnapshotResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Pending) != 2 || resp.Pending[0].Command != "G28" {
		t.Fatalf("unexpected pending: %+v", resp.Pending)
	}
	if resp.InFlightCapacity != 5 || resp.State != "awaiting_reply" {
		t.Fatalf("unexpected snapshot: %+v", resp)
	}

	rr = do(t, s, http.MethodGet, "/snapshot?acks=-1", "", true)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative acks, got %d", rr.Code)
	}
}

func TestHandleCommands(t *testing.T) {
	s, dc, _ := newTestServer(t)

	rr := do(t, s, http.MethodPost, "/commands", `{"commands":["G28","M105"]}`, true)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp CommandsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Queued != 2 || resp.Pending != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	rr = do(t, s, http.MethodPost, "/commands", `{"commands":["M114","","M119"],"position":"head"}`, true)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
	rr = do(t, s, http.MethodPost, "/commands", `{"commands":["G4 P1"],"position":3}`, true)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}

	want := []string{"M114", "M119", "G28", "G4 P1", "M105"}
	if got := pending(dc); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("pending = %v, want %v", got, want)
	}

	for body, code := range map[string]int{
		`not json`:                              http.StatusBadRequest,
		`{"commands":[]}`:                       http.StatusBadRequest,
		`{"commands":["G28"],"position":"mid"}`: http.StatusBadRequest,
		`{"commands":["G28"],"position":-2}`:    http.StatusBadRequest,
		`{"commands":["G28"],"position":99}`:    http.StatusUnprocessableEntity,
	} {
		if rr := do(t, s, http.MethodPost, "/commands", body, true); rr.Code != code {
			t.Errorf("body %s: expected %d, got %d", body, code, rr.Code)
		}
	}
}

func TestHandleControl(t *testing.T) {
	s, dc, _ := newTestServer(t)

	rr := do(t, s, http.MethodPost, "/control/run", "", true)
	if rr.Code != http.StatusOK || !dc.Running() {
		t.Fatalf("run: status %d running %v", rr.Code, dc.Running())
	}

	rr = do(t, s, http.MethodPost, "/control/pause", "", true)
	if rr.Code != http.StatusOK || dc.Running() {
		t.Fatalf("pause: status %d running %v", rr.Code, dc.Running())
	}

	_ = dc.Enqueue("G28", queue.Tail)
	_ = dc.Enqueue("G29", queue.Tail)
	rr = do(t, s, http.MethodPost, "/control/flush", "", true)
	var resp ControlResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Flushed != 2 || len(pending(dc)) != 0 {
		t.Fatalf("unexpected flush response: %+v", resp)
	}

	if rr := do(t, s, http.MethodPost, "/control/explode", "", true); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d", rr.Code)
	}
}

func TestHandleMetrics(t *testing.T) {
	s, dc, _ := newTestServer(t)
	_ = dc.Enqueue("G28", queue.Tail)

	rr := do(t, s, http.MethodGet, "/metrics", "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "gwiz_pending_depth 1") {
		t.Fatalf("metrics output missing pending depth:\n%s", rr.Body.String())
	}
}

func TestHandleEvents_ReplayAndLive(t *testing.T) {
	s, dc, _ := newTestServer(t)
	dc.AddNotice(events.NoticeWarn, "before connect")

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	dc.AddNotice(events.NoticeInfo, "after connect")

	sc := bufio.NewScanner(resp.Body)
	var seen []string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, "connect") {
			seen = append(seen, line)
		}
		if len(seen) == 2 {
			break
		}
	}
	if len(seen) != 2 {
		t.Fatalf("expected replayed and live notices, got %v (err %v)", seen, sc.Err())
	}
	if !strings.Contains(seen[0], "before connect") || !strings.Contains(seen[1], "after connect") {
		t.Fatalf("unexpected event order: %v", seen)
	}
}

func TestParseLastEventID(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]int64{"": 0, "12": 12, "-3": 0, "x": 0} {
		if got := parseLastEventID(in); got != want {
			t.Errorf("parseLastEventID(%q) = %d, want %d", in, got, want)
		}
	}
}
