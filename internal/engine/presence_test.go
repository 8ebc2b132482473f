package engine

import (
	"errors"
	"testing"
)

// Two receivers see the same beacon; the stronger signal ranks first.
func TestRankedReceiversStrongestFirst(t *testing.T) {
	e := testEngine(t)
	e.Ingest(Report{Receiver: "R1", Objects: []ReportObject{
		{Address: "AA:BB", Name: "X", RSSI: Signal{Value: -55}, Online: true},
	}}, 1000)
	e.Ingest(Report{Receiver: "R2", Objects: []ReportObject{
		{Address: "AA:BB", RSSI: Signal{Value: -70}, Online: true},
	}}, 1500)

	ranked, err := e.RankedReceivers("AA:BB", 2000)
	if err != nil {
		t.Fatalf("ranked receivers: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("len = %d, want 2", len(ranked))
	}
	if ranked[0].ID != "R1" || ranked[0].RSSI != -55 {
		t.Errorf("ranked[0] = %s(%d), want R1(-55)", ranked[0].ID, ranked[0].RSSI)
	}
	if ranked[1].ID != "R2" || ranked[1].RSSI != -70 {
		t.Errorf("ranked[1] = %s(%d), want R2(-70)", ranked[1].ID, ranked[1].RSSI)
	}
	if ranked[0].Seen == "" {
		t.Error("ranked entries must carry a human-readable time")
	}
}

// Same setup queried far in the future: everything is stale, empty result.
func TestRankedReceiversAllStale(t *testing.T) {
	e := testEngine(t)
	e.Ingest(Report{Receiver: "R1", Objects: []ReportObject{
		{Address: "AA:BB", Name: "X", RSSI: Signal{Value: -55}, Online: true},
	}}, 1000)
	e.Ingest(Report{Receiver: "R2", Objects: []ReportObject{
		{Address: "AA:BB", RSSI: Signal{Value: -70}, Online: true},
	}}, 1500)

	ranked, err := e.RankedReceivers("AA:BB", 20000)
	if err != nil {
		t.Fatalf("ranked receivers: %v", err)
	}
	if len(ranked) != 0 {
		t.Errorf("len = %d, want 0 (both stale, not an error)", len(ranked))
	}
}

func TestRankedReceiversTieKeepsOrder(t *testing.T) {
	e := testEngine(t)
	for _, rid := range []string{"R3", "R1", "R2"} {
		e.Ingest(Report{Receiver: rid, Objects: []ReportObject{
			{Address: "AA:BB", RSSI: Signal{Value: -60}, Online: true},
		}}, 1000)
	}

	ranked, _ := e.RankedReceivers("AA:BB", 2000)
	want := []string{"R3", "R1", "R2"} // detection insertion order, not alphabetical
	for i, r := range ranked {
		if r.ID != want[i] {
			t.Fatalf("ranked[%d] = %s, want %s", i, r.ID, want[i])
		}
	}
}

func TestRankedReceiversFreshnessBoundary(t *testing.T) {
	e := testEngine(t)
	e.Ingest(Report{Receiver: "R1", Objects: []ReportObject{
		{Address: "AA:BB", RSSI: Signal{Value: -55}},
	}}, 1000)

	// Default freshness is 15s; age exactly 15000 is still fresh.
	ranked, _ := e.RankedReceivers("AA:BB", 16000)
	if len(ranked) != 1 {
		t.Errorf("at boundary: len = %d, want 1", len(ranked))
	}
	ranked, _ = e.RankedReceivers("AA:BB", 16001)
	if len(ranked) != 0 {
		t.Errorf("past boundary: len = %d, want 0", len(ranked))
	}
}

func TestPresenceNotFound(t *testing.T) {
	e := testEngine(t)
	if _, err := e.Presence("no-such-beacon", 1000); !errors.Is(err, ErrBeaconNotFound) {
		t.Errorf("err = %v, want ErrBeaconNotFound", err)
	}
}

func TestPresenceCarriesIdentity(t *testing.T) {
	e := testEngine(t)
	e.Ingest(Report{Receiver: "R1", Objects: []ReportObject{
		{Address: "AA:BB", Name: "keys", RSSI: Signal{Value: -50}, Online: true},
	}}, 1000)

	p, err := e.Presence("keys", 2000)
	if err != nil {
		t.Fatalf("presence by name: %v", err)
	}
	if p.Address != "AA:BB" || p.Name != "keys" || p.FirstSeen != 1000 {
		t.Errorf("presence = %+v", p)
	}
	if len(p.Receivers) != 1 {
		t.Errorf("receivers = %d, want 1", len(p.Receivers))
	}
}
