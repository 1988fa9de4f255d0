package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/gwiz/internal/api"
	"github.com/mattjoyce/gwiz/internal/audit"
	"github.com/mattjoyce/gwiz/internal/auth"
	"github.com/mattjoyce/gwiz/internal/config"
	"github.com/mattjoyce/gwiz/internal/dispatch"
	"github.com/mattjoyce/gwiz/internal/events"
	"github.com/mattjoyce/gwiz/internal/log"
	"github.com/mattjoyce/gwiz/internal/metrics"
	"github.com/mattjoyce/gwiz/internal/scheduler"
	"github.com/mattjoyce/gwiz/internal/storage"
	"github.com/mattjoyce/gwiz/internal/transport"
)

const (
	driverToken = "driver-token-0123456789abcdef"
	viewerToken = "viewer-token-0123456789abcdef"
)

func TestMain(m *testing.M) {
	log.Setup(log.Options{Level: "ERROR"})
	os.Exit(m.Run())
}

type rig struct {
	dc     *dispatch.Context
	sim    *transport.Sim
	hub    *events.Hub
	server *httptest.Server
	query  func(audit.Stream) []audit.Record
}

func newRig(t *testing.T, ctx context.Context) *rig {
	t.Helper()

	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sessionID, err := storage.NewSessions(db).Start(ctx, "bench", "sim", "")
	require.NoError(t, err)

	store := audit.NewSQLiteSink(db, sessionID)
	router := &audit.Router{Machine: store, Diagnostic: store, Debug: store}

	hub := events.NewHub(events.DefaultRing)
	rec := metrics.New()
	dc := dispatch.NewContext(dispatch.Options{
		Machine: "bench",
		Router:  router,
		Events:  hub,
		Metrics: rec,
	})

	sim := transport.NewSim()
	t.Cleanup(func() { _ = sim.Close() })

	loop := dispatch.NewLoop(dc, sim)
	go func() { _ = loop.Run(ctx) }()

	srv := api.New(api.Config{
		Listen:    "127.0.0.1:0",
		AckWindow: 10,
		Tokens: []auth.TokenConfig{
			{Token: driverToken, Scopes: []string{auth.ScopeControl}},
			{Token: viewerToken, Scopes: []string{auth.ScopeRead}},
		},
	}, dc, hub, rec, log.WithComponent("api"))
	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)

	return &rig{
		dc:     dc,
		sim:    sim,
		hub:    hub,
		server: server,
		query: func(stream audit.Stream) []audit.Record {
			records, err := audit.Query(ctx, db, sessionID, stream)
			require.NoError(t, err)
			return records
		},
	}
}

func (r *rig) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, r.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestCommandsOverAPIReachMachineAndAudit(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	r := newRig(t, ctx)

	resp := r.do(t, http.MethodPost, "/commands", driverToken, api.CommandsRequest{
		Commands: []string{"G28", "", "G1 X5 Y5", "M114"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var queued api.CommandsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&queued))
	assert.Equal(t, 3, queued.Queued)

	require.NoError(t, r.dc.WaitIdle(ctx, 10*time.Millisecond))
	assert.Equal(t, []string{"G28", "G1 X5 Y5", "M114"}, r.sim.Written())

	resp = r.do(t, http.MethodGet, "/snapshot", viewerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap api.SnapshotResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "bench", snap.Machine)
	assert.Empty(t, snap.Pending)
	assert.Empty(t, snap.InFlight)
	assert.Contains(t, snap.Position, "X:5.00 Y:5.00")

	var machine []string
	for _, rec := range r.query(audit.StreamMachine) {
		machine = append(machine, rec.Message)
	}
	for _, want := range []string{"G28", "G1 X5 Y5", "M114"} {
		assert.True(t, slices.Contains(machine, want), "machine stream missing %q: %v", want, machine)
	}
}

func TestViewerCannotDrive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	r := newRig(t, ctx)

	resp := r.do(t, http.MethodPost, "/control/pause", viewerToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.True(t, r.dc.Running())

	resp = r.do(t, http.MethodPost, "/control/pause", driverToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, r.dc.Running())

	resp = r.do(t, http.MethodGet, "/snapshot", "nope", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPollerFeedsTelemetry(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	r := newRig(t, ctx)

	resp := r.do(t, http.MethodPost, "/commands", driverToken, api.CommandsRequest{
		Commands: []string{"M104 S200"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NoError(t, r.dc.WaitIdle(ctx, 10*time.Millisecond))

	polls := scheduler.New([]config.PollConfig{{Command: "M105", Every: time.Hour}}, r.dc, r.hub, log.WithComponent("scheduler"))
	polls.Start(ctx)
	defer polls.Stop()

	require.Eventually(t, func() bool {
		snap := r.dc.Snapshot(1)
		return len(snap.Machine.Heaters) > 0
	}, 5*time.Second, 20*time.Millisecond)

	// Polls are due once an hour, so exactly one went out.
	require.NoError(t, r.dc.WaitIdle(ctx, 10*time.Millisecond))
	count := 0
	for _, line := range r.sim.Written() {
		if line == "M105" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
