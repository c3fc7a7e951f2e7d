package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/creditcoin-project/ccprocessor/pkg/settings"
	"github.com/creditcoin-project/ccprocessor/pkg/state"
)

type fakeReplay struct{ terminated bool }

func (f fakeReplay) Terminated() bool { return f.terminated }

func newTestServer(t *testing.T, replay ReplaySource) *Server {
	t.Helper()
	mem := state.NewMemoryStore()
	mem.SetTip(42)
	store := state.NewAccessor(mem)
	cache := settings.NewCache(store, nil)
	cache.Seed(map[string]string{
		settings.KeyGatewaySighash: "gw-sighash",
		settings.KeyGatewayURL:     "localhost:55555",
		settings.KeyV2Block:        "900000",
	})
	return NewServer(store, cache, replay, nil)
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Tip != 42 {
		t.Fatalf("expected tip 42, got %d", resp.Tip)
	}
	if resp.ReplayActive {
		t.Fatalf("expected replayActive=false when no replay source is wired")
	}
}

func TestHandleStatus_ReplayActive(t *testing.T) {
	srv := newTestServer(t, fakeReplay{terminated: false})
	req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	var resp StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.ReplayActive {
		t.Fatalf("expected replayActive=true")
	}
}

func TestHandleSettings(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/admin/settings", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	var resp SettingsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.GatewaySighash != "gw-sighash" {
		t.Fatalf("unexpected gateway sighash: %q", resp.GatewaySighash)
	}
	if resp.GatewayURL != "tcp://localhost:55555" {
		t.Fatalf("unexpected gateway url: %q", resp.GatewayURL)
	}
	if !resp.V2Set || resp.V2Block != 900000 {
		t.Fatalf("unexpected v2 block: %+v", resp)
	}
	if resp.Update1Set {
		t.Fatalf("expected update1 to be unset")
	}
}

func TestHandleReplay_Disabled(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/admin/replay", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	var resp ReplayStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Enabled {
		t.Fatalf("expected replay disabled")
	}
}

func TestHandleReplay_Enabled(t *testing.T) {
	srv := newTestServer(t, fakeReplay{terminated: true})
	req := httptest.NewRequest(http.MethodGet, "/admin/replay", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)

	var resp ReplayStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Enabled || !resp.Terminated {
		t.Fatalf("unexpected replay status: %+v", resp)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestHubPublish_NoSubscribersIsNoop(t *testing.T) {
	hub := NewHub(nil)
	hub.Publish(TxEvent{ID: "1", GUID: "g1", Verb: "SendFunds"})
}
