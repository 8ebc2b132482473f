package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lazypower/tether/internal/engine"
	"github.com/lazypower/tether/internal/registry"
	"github.com/lazypower/tether/internal/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	eng := engine.New(registry.New(), nil, zerolog.Nop())
	return New(eng, zerolog.Nop(), "test")
}

func postReport(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/report", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestReportIngest(t *testing.T) {
	srv := testServer(t)

	body := `{"receiver":"esp-01","name":"kitchen","objects":[
		{"address":"AA:BB","name":"keys","rssi":-55,"online":true},
		{"address":"CC:DD","rssi":{"average":-62,"current":-48},"online":false}
	]}`
	w := postReport(t, srv, body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var res engine.IngestResult
	json.Unmarshal(w.Body.Bytes(), &res)
	if res.Merged != 2 || res.Skipped != 0 {
		t.Errorf("result = %+v, want 2 merged", res)
	}
	if res.ReportID == "" {
		t.Error("report_id missing")
	}
}

func TestReportMissingReceiver(t *testing.T) {
	srv := testServer(t)

	w := postReport(t, srv, `{"objects":[{"address":"AA:BB","rssi":-55}]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestReportInvalidJSON(t *testing.T) {
	srv := testServer(t)

	w := postReport(t, srv, `{"receiver": nope`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestBeaconLookup(t *testing.T) {
	srv := testServer(t)
	postReport(t, srv, `{"receiver":"esp-01","name":"kitchen","objects":[
		{"address":"AA:BB","name":"keys","rssi":-55,"online":true}]}`)

	req := httptest.NewRequest("GET", "/api/beacons/AA:BB", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var presence engine.BeaconPresence
	json.Unmarshal(w.Body.Bytes(), &presence)
	if presence.Address != "AA:BB" || presence.Name != "keys" {
		t.Errorf("presence = %+v", presence)
	}
	if len(presence.Receivers) != 1 || presence.Receivers[0].Name != "kitchen" {
		t.Errorf("receivers = %+v", presence.Receivers)
	}
}

func TestBeaconNotFound(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest("GET", "/api/beacons/FF:FF", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestListDecodesLegacyNames(t *testing.T) {
	srv := testServer(t)
	postReport(t, srv, `{"receiver":"esp-01","objects":[
		{"address":"AA:BB","name":"caf%E9","rssi":-55}]}`)

	req := httptest.NewRequest("GET", "/api/list", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "café") {
		t.Errorf("legacy name not decoded: %s", w.Body.String())
	}
}

func TestStatus(t *testing.T) {
	srv := testServer(t)
	postReport(t, srv, `{"receiver":"esp-01","objects":[
		{"address":"AA:BB","rssi":-55,"online":true}]}`)

	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var summary engine.Summary
	json.Unmarshal(w.Body.Bytes(), &summary)
	if summary.Receivers != 1 || summary.ReceiversActive != 1 {
		t.Errorf("receivers = %d/%d, want 1/1", summary.Receivers, summary.ReceiversActive)
	}
	if summary.Beacons != 1 || summary.BeaconsActive != 1 {
		t.Errorf("beacons = %d/%d, want 1/1", summary.Beacons, summary.BeaconsActive)
	}
}

func TestReset(t *testing.T) {
	srv := testServer(t)
	postReport(t, srv, `{"receiver":"esp-01","objects":[{"address":"AA:BB","rssi":-55}]}`)

	req := httptest.NewRequest("POST", "/api/reset", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/status", nil)
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var summary engine.Summary
	json.Unmarshal(w.Body.Bytes(), &summary)
	if summary.Receivers != 0 || summary.Beacons != 0 {
		t.Errorf("summary after reset = %+v", summary)
	}
}

func TestHistoryDisabled(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest("GET", "/api/history/AA:BB", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHistoryEnabled(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	defer db.Close()

	eng := engine.New(registry.New(), nil, zerolog.Nop())
	eng.SetHistory(db)
	srv := New(eng, zerolog.Nop(), "test")

	postReport(t, srv, `{"receiver":"esp-01","objects":[{"address":"AA:BB","rssi":-55,"online":true}]}`)

	req := httptest.NewRequest("GET", "/api/history/AA:BB?limit=5", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Address   string           `json:"address"`
		Sightings []store.Sighting `json:"sightings"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Sightings) != 1 || resp.Sightings[0].ReceiverID != "esp-01" {
		t.Errorf("sightings = %+v", resp.Sightings)
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}
