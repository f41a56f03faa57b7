package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"parley/server/internal/core"
	"parley/server/internal/registry"
)

func newTestAPI(t *testing.T) (*httptest.Server, *core.State, *registry.Store) {
	t.Helper()

	users, err := registry.Open(filepath.Join(t.TempDir(), "users_database.json"))
	if err != nil {
		t.Fatalf("open registry: %v", err)
	}
	state := core.NewState(100, time.Minute)
	ts := httptest.NewServer(New(state, users).Echo())
	t.Cleanup(ts.Close)
	return ts, state, users
}

func TestHealthAndState(t *testing.T) {
	ts, state, users := newTestAPI(t)

	if _, err := users.Register("alice", "pw", time.Now()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, _, err := state.Join("alice", 8); err != nil {
		t.Fatalf("join: %v", err)
	}
	state.AppendBroadcast("alice", "hello", time.Now())
	state.EnqueuePrivate("bob", "(s) alice: psst")
	for i := 0; i < 3; i++ {
		state.AddClaim("troll")
	}

	healthResp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer healthResp.Body.Close()
	if healthResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", healthResp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(healthResp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.Clients != 1 {
		t.Fatalf("unexpected health payload: %#v", health)
	}

	stateResp, err := http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("GET /api/state: %v", err)
	}
	defer stateResp.Body.Close()
	if stateResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /api/state, got %d", stateResp.StatusCode)
	}
	var got stateResponse
	if err := json.NewDecoder(stateResp.Body).Decode(&got); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if got.Clients != 1 || len(got.Online) != 1 || got.Online[0] != "alice" {
		t.Fatalf("unexpected roster: %#v", got)
	}
	if got.Registered != 1 || got.HistoryLen != 1 || got.NextIndex != 1 {
		t.Fatalf("unexpected counters: %#v", got)
	}
	if got.PendingQueues != 1 {
		t.Fatalf("pending queues = %d, want 1", got.PendingQueues)
	}
	if len(got.ActiveBans) != 1 || got.ActiveBans[0] != "troll" {
		t.Fatalf("active bans = %#v", got.ActiveBans)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	ts, state, _ := newTestAPI(t)

	now := time.Now()
	state.AppendBroadcast("alice", "one", now)
	state.AppendBroadcast("bob", "two", now)
	state.AppendBroadcast("alice", "three", now)

	resp, err := http.Get(ts.URL + "/api/history?limit=2")
	if err != nil {
		t.Fatalf("GET /api/history: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var entries []historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Index != 1 || entries[1].Index != 2 {
		t.Fatalf("unexpected tail: %#v", entries)
	}
	if entries[1].Author != "alice" || !strings.HasSuffix(entries[1].Text, "alice: three") {
		t.Fatalf("unexpected entry: %#v", entries[1])
	}

	bad, err := http.Get(ts.URL + "/api/history?limit=nope")
	if err != nil {
		t.Fatalf("GET bad limit: %v", err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", bad.StatusCode)
	}
}

func TestMetricsEndpointExposesCollectors(t *testing.T) {
	ts, _, _ := newTestAPI(t)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "parley_connected_clients") {
		t.Fatal("scrape output missing parley collectors")
	}
}
