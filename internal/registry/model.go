package registry

import (
	"encoding/json"
	"strconv"
)

// Receiver is a fixed observation point. Receivers identify themselves on
// every report; the registry keys them by that id, so the struct carries
// only attributes.
type Receiver struct {
	Name         string `json:"name"`
	Kind         string `json:"type"`
	Update       int64  `json:"update"` // last report, epoch ms
	Batch        int    `json:"batch"`
	TotalBatches int    `json:"total_batches"`
}

// Beacon is a tracked mobile entity, keyed by its hardware address.
// Detections map receiver id to that receiver's latest sighting.
type Beacon struct {
	Name       string               `json:"name"`
	FirstSeen  int64                `json:"first_seen"` // epoch ms, set once
	Detections map[string]Detection `json:"detections"`
}

// Detection is one receiver's most recent observation of one beacon.
// The receiver name is denormalized so callers can render a detection
// without a second lookup.
type Detection struct {
	ReceiverName string    `json:"receiver_name"`
	RSSI         int       `json:"rssi"`
	Online       bool      `json:"online"`
	UpdateTime   Timestamp `json:"update_time"`
}

// Document is the persisted shape of the whole registry: one JSON file,
// read and overwritten as a unit.
type Document struct {
	Devices map[string]Receiver `json:"devices"`
	Beacons map[string]Beacon   `json:"beacons"`
}

// Timestamp carries a detection timestamp in either of the two wire formats
// historical receiver firmware produces: an epoch-milliseconds number, or a
// localized "YYYY/M/D H:M:S" string. Resolution to a usable instant happens
// in the engine's staleness evaluator; the registry just preserves what was
// reported.
type Timestamp struct {
	Millis int64
	Text   string
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Millis != 0 {
		return []byte(strconv.FormatInt(t.Millis, 10)), nil
	}
	if t.Text != "" {
		return json.Marshal(t.Text)
	}
	return []byte("0"), nil
}

// UnmarshalJSON accepts a number or a string. Any other shape is kept as a
// zero Timestamp, which the staleness evaluator classifies stale — a bad
// timestamp must never fail a document load.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*t = Timestamp{Millis: int64(n)}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = Timestamp{Text: s}
		return nil
	}
	*t = Timestamp{}
	return nil
}
