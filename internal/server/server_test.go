package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"PortView/internal/observability"
	"PortView/internal/projection"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *observability.HealthChecker) {
	t.Helper()
	health := observability.NewHealthChecker()
	s := New(":0", health, nil)
	ts := httptest.NewServer(s.httpSrv.Handler)
	t.Cleanup(ts.Close)
	return s, ts, health
}

func snapshot(loadComplete bool) *projection.PortfolioSnapshot {
	return &projection.PortfolioSnapshot{
		BaseCurrency:        "USD",
		TotalEquity:         101500,
		InitialLoadComplete: loadComplete,
		LastUpdateAt:        time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC),
		PositionCount:       1,
	}
}

func TestSnapshotEndpoint_404BeforeFirstEvent(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSnapshotEndpoint_ServesLatest(t *testing.T) {
	s, ts, _ := newTestServer(t)

	s.OnSnapshot(snapshot(false))
	s.OnSnapshot(snapshot(true))

	resp, err := http.Get(ts.URL + "/api/v1/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var got projection.PortfolioSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.InitialLoadComplete || got.TotalEquity != 101500 {
		t.Errorf("served snapshot: %+v", got)
	}
	if s.Latest() == nil || !s.Latest().InitialLoadComplete {
		t.Error("Latest does not track the newest snapshot")
	}
}

func TestReadiness_FlipsOnInitialLoadComplete(t *testing.T) {
	s, ts, health := newTestServer(t)

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz before load = %d, want 503", resp.StatusCode)
	}

	// Snapshots during the initial load do not flip readiness.
	s.OnSnapshot(snapshot(false))
	if health.IsReady() {
		t.Fatal("ready before initial load complete")
	}

	s.OnSnapshot(snapshot(true))
	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz after load = %d, want 200", resp.StatusCode)
	}
}

func TestLiveness_AlwaysOK(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "alive") {
		t.Errorf("healthz body: %s", body)
	}
}

func TestWS_InitialFrameAndBroadcast(t *testing.T) {
	s, ts, _ := newTestServer(t)
	s.OnSnapshot(snapshot(false))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// The connect handshake replays the latest snapshot.
	var first projection.PortfolioSnapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.InitialLoadComplete {
		t.Errorf("initial frame: %+v", first)
	}

	s.OnSnapshot(snapshot(true))
	var second projection.PortfolioSnapshot
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatal(err)
	}
	if !second.InitialLoadComplete {
		t.Errorf("broadcast frame: %+v", second)
	}
}

func TestWS_NoInitialFrameBeforeFirstSnapshot(t *testing.T) {
	s, ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// Give the handler a moment to register the client before
	// broadcasting; the dial handshake completes slightly earlier.
	time.Sleep(50 * time.Millisecond)

	// The first frame the client sees is the first broadcast.
	s.OnSnapshot(snapshot(true))
	var got projection.PortfolioSnapshot
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if !got.InitialLoadComplete {
		t.Errorf("first frame: %+v", got)
	}
}
