package store

import (
	"fmt"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)
	v, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("version = %d, want %d", v, len(migrations))
	}
}

func TestAppendAndRecentSightings(t *testing.T) {
	db := testDB(t)

	var batch []Sighting
	for i := 0; i < 5; i++ {
		batch = append(batch, Sighting{
			ReportID:   fmt.Sprintf("report-%d", i),
			ReceiverID: "esp-01",
			Address:    "AA:BB",
			RSSI:       -50 - i,
			Online:     true,
			SeenAt:     int64(1000 + i*100),
		})
	}
	batch = append(batch, Sighting{
		ReportID: "other", ReceiverID: "esp-02", Address: "CC:DD", RSSI: -70, SeenAt: 9999,
	})
	if err := db.AppendSightings(batch); err != nil {
		t.Fatalf("append: %v", err)
	}

	rows, err := db.RecentSightings("AA:BB", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3 (limit)", len(rows))
	}
	if rows[0].SeenAt != 1400 || rows[2].SeenAt != 1200 {
		t.Errorf("ordering = %d..%d, want newest first", rows[0].SeenAt, rows[2].SeenAt)
	}
	for _, r := range rows {
		if r.Address != "CC:DD" {
			continue
		}
		t.Error("rows for another address leaked into the result")
	}
}

func TestAppendEmptyBatchIsNoop(t *testing.T) {
	db := testDB(t)
	if err := db.AppendSightings(nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}

func TestPruneSightings(t *testing.T) {
	db := testDB(t)
	db.AppendSightings([]Sighting{
		{ReportID: "a", ReceiverID: "esp-01", Address: "AA:BB", RSSI: -50, SeenAt: 1000},
		{ReportID: "b", ReceiverID: "esp-01", Address: "AA:BB", RSSI: -51, SeenAt: 2000},
		{ReportID: "c", ReceiverID: "esp-01", Address: "AA:BB", RSSI: -52, SeenAt: 3000},
	})

	n, err := db.PruneSightings(2500)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}

	rows, _ := db.RecentSightings("AA:BB", 10)
	if len(rows) != 1 || rows[0].SeenAt != 3000 {
		t.Errorf("remaining rows = %+v", rows)
	}
}
