package engine

import (
	"encoding/json"
	"fmt"

	"github.com/lazypower/tether/internal/registry"
	"github.com/lazypower/tether/internal/store"
)

// FindBeacon looks a beacon up by hardware address first, display name
// second, in registry iteration order. Names are not unique — the first
// name match wins, so callers wanting a specific beacon should pass the
// address.
func (e *Engine) FindBeacon(identity string) (registry.BeaconView, error) {
	beacons := e.reg.Beacons()
	for _, b := range beacons {
		if b.Address == identity {
			return b, nil
		}
	}
	for _, b := range beacons {
		if b.Name == identity {
			return b, nil
		}
	}
	return registry.BeaconView{}, ErrBeaconNotFound
}

// Summary is the aggregate status of the tracker.
type Summary struct {
	Receivers       int `json:"receivers"`
	ReceiversActive int `json:"receivers_active"`
	Beacons         int `json:"beacons"`
	BeaconsActive   int `json:"beacons_active"`
}

// StatusSummary counts receivers and beacons, plus how many of each are
// currently active. A receiver is active when its last report falls inside
// the active window; a beacon is active when at least one detection is both
// inside the window and flagged online by its receiver.
func (e *Engine) StatusSummary(now int64) Summary {
	var s Summary

	window := e.thresholds.ActiveWindow.Milliseconds()
	for _, dev := range e.reg.Receivers() {
		s.Receivers++
		if now-dev.Update <= window {
			s.ReceiversActive++
		}
	}

	for _, b := range e.reg.Beacons() {
		s.Beacons++
		for _, d := range b.Detections {
			if d.Online && Fresh(d.UpdateTime, now, e.thresholds.ActiveWindow) {
				s.BeaconsActive++
				break
			}
		}
	}
	return s
}

// Snapshot returns the full registry document as a generic JSON value tree
// with legacy escaped text decoded, ready for rendering. Snapshots are
// derived copies; mutating one never touches the registry.
func (e *Engine) Snapshot() (any, error) {
	raw, err := json.Marshal(e.reg.Document())
	if err != nil {
		return nil, fmt.Errorf("encode registry: %w", err)
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return DecodeLegacyText(tree), nil
}

// RecentSightings returns history rows for one beacon address, newest first.
func (e *Engine) RecentSightings(address string, limit int) ([]store.Sighting, error) {
	if e.history == nil {
		return nil, ErrHistoryDisabled
	}
	return e.history.RecentSightings(address, limit)
}
