package engine

import (
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lazypower/tether/internal/registry"
)

// RankedReceiver is one entry in a beacon's presence ranking.
type RankedReceiver struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	RSSI      int    `json:"rssi"`
	Online    bool   `json:"online"`
	Timestamp int64  `json:"timestamp"`
	Seen      string `json:"seen"`
}

// BeaconPresence is the answer to "where is this beacon": its identity plus
// the fresh receivers currently observing it, strongest signal first.
type BeaconPresence struct {
	Address   string           `json:"address"`
	Name      string           `json:"name"`
	FirstSeen int64            `json:"first_seen"`
	Receivers []RankedReceiver `json:"receivers"`
}

// RankedReceivers returns the receivers with a fresh detection of the given
// beacon, sorted descending by signal strength. RSSI orders by physical
// proximity only heuristically, but strongest-first is the best available
// answer. Ties keep registry iteration order. An empty slice, not an error,
// means nothing fresh is observing the beacon.
func (e *Engine) RankedReceivers(identity string, now int64) ([]RankedReceiver, error) {
	beacon, err := e.FindBeacon(identity)
	if err != nil {
		return nil, err
	}
	return rankDetections(beacon, now, e.thresholds.Freshness), nil
}

// Presence bundles a beacon's identity with its ranked receivers.
func (e *Engine) Presence(identity string, now int64) (BeaconPresence, error) {
	beacon, err := e.FindBeacon(identity)
	if err != nil {
		return BeaconPresence{}, err
	}
	return BeaconPresence{
		Address:   beacon.Address,
		Name:      beacon.Name,
		FirstSeen: beacon.FirstSeen,
		Receivers: rankDetections(beacon, now, e.thresholds.Freshness),
	}, nil
}

func rankDetections(b registry.BeaconView, now int64, threshold time.Duration) []RankedReceiver {
	ranked := make([]RankedReceiver, 0, len(b.Detections))
	for _, d := range b.Detections {
		ms, ok := ResolveTimestamp(d.UpdateTime)
		if !ok || now-ms > threshold.Milliseconds() {
			continue
		}
		ranked = append(ranked, RankedReceiver{
			ID:        d.ReceiverID,
			Name:      d.ReceiverName,
			RSSI:      d.RSSI,
			Online:    d.Online,
			Timestamp: ms,
			Seen:      humanize.RelTime(time.UnixMilli(ms), time.UnixMilli(now), "ago", "from now"),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RSSI > ranked[j].RSSI
	})
	return ranked
}
