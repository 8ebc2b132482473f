package store

import (
	"fmt"
)

// Sighting is one row of detection history: a single receiver seeing a
// single beacon in a single report. Unlike the registry, history appends
// rather than overwrites, so movement between receivers can be replayed.
type Sighting struct {
	ID         int64  `json:"id"`
	ReportID   string `json:"report_id"`
	ReceiverID string `json:"receiver_id"`
	Address    string `json:"address"`
	RSSI       int    `json:"rssi"`
	Online     bool   `json:"online"`
	SeenAt     int64  `json:"seen_at"`
}

// AppendSightings stores all sightings from one merged report in a single
// transaction.
func (db *DB) AppendSightings(sightings []Sighting) error {
	if len(sightings) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin sightings: %w", err)
	}

	for _, s := range sightings {
		if _, err := tx.Exec(`
			INSERT INTO sightings (report_id, receiver_id, address, rssi, online, seen_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, s.ReportID, s.ReceiverID, s.Address, s.RSSI, s.Online, s.SeenAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert sighting: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sightings: %w", err)
	}
	return nil
}

// RecentSightings returns the newest sightings for one beacon address,
// newest first.
func (db *DB) RecentSightings(address string, limit int) ([]Sighting, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT id, report_id, receiver_id, address, rssi, online, seen_at
		FROM sightings WHERE address = ? ORDER BY seen_at DESC, id DESC LIMIT ?
	`, address, limit)
	if err != nil {
		return nil, fmt.Errorf("query sightings: %w", err)
	}
	defer rows.Close()

	sightings := make([]Sighting, 0, limit)
	for rows.Next() {
		var s Sighting
		if err := rows.Scan(&s.ID, &s.ReportID, &s.ReceiverID, &s.Address, &s.RSSI, &s.Online, &s.SeenAt); err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		sightings = append(sightings, s)
	}
	return sightings, rows.Err()
}

// PruneSightings deletes all history older than the cutoff (epoch ms).
// Returns the number of rows removed.
func (db *DB) PruneSightings(cutoff int64) (int64, error) {
	res, err := db.Exec("DELETE FROM sightings WHERE seen_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune sightings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
