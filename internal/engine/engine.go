// Package engine is the presence-tracking core: it folds receiver reports
// into the registry, answers presence and status queries, and sweeps out
// data that has aged past retention.
package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lazypower/tether/internal/registry"
	"github.com/lazypower/tether/internal/store"
)

var (
	// ErrMissingReceiver rejects a report that does not identify its receiver.
	ErrMissingReceiver = errors.New("report missing receiver id")
	// ErrBeaconNotFound is the typed miss for beacon lookups.
	ErrBeaconNotFound = errors.New("beacon not found")
	// ErrHistoryDisabled is returned when history queries run without a
	// history database configured.
	ErrHistoryDisabled = errors.New("sighting history not configured")
)

// Thresholds are the three time windows the tracker cares about. Freshness
// and the active window answer "is this visible right now" on two different
// query paths; retention governs storage growth. They are deliberately
// independent and must not be collapsed into one knob.
type Thresholds struct {
	// Freshness bounds the age of detections usable for display/ranking.
	Freshness time.Duration
	// ActiveWindow bounds the age of detections counted as currently active.
	ActiveWindow time.Duration
	// Retention bounds how long stale receivers and detections are kept at all.
	Retention time.Duration
}

// DefaultThresholds returns the stock windows: 15s freshness, 10s active,
// 30min retention.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Freshness:    15 * time.Second,
		ActiveWindow: 10 * time.Second,
		Retention:    30 * time.Minute,
	}
}

// DefaultReapInterval is how often the reaper sweeps.
const DefaultReapInterval = 30 * time.Minute

// DefaultHistoryRetention is how long sighting-history rows are kept.
const DefaultHistoryRetention = 7 * 24 * time.Hour

// Engine owns the registry and coordinates ingestion, queries, and the
// reaper. All mutation paths (Ingest, Reap, Reset) are serialized by a
// single-writer mutex so the merge-then-persist-whole-document cycle never
// loses an update; reads go straight to the registry's own lock.
type Engine struct {
	reg *registry.Registry
	log zerolog.Logger

	files   *store.FileStore // nil disables persistence (tests)
	history *store.DB        // nil disables sighting history

	thresholds       Thresholds
	reapInterval     time.Duration
	historyRetention time.Duration

	writeMu sync.Mutex
	stopCh  chan struct{}
}

// New creates an Engine over the given registry with default thresholds.
// files may be nil, in which case nothing is persisted.
func New(reg *registry.Registry, files *store.FileStore, log zerolog.Logger) *Engine {
	return &Engine{
		reg:              reg,
		files:            files,
		log:              log.With().Str("component", "engine").Logger(),
		thresholds:       DefaultThresholds(),
		reapInterval:     DefaultReapInterval,
		historyRetention: DefaultHistoryRetention,
		stopCh:           make(chan struct{}),
	}
}

// SetThresholds overrides the default time windows. Zero fields keep their
// defaults.
func (e *Engine) SetThresholds(t Thresholds) {
	if t.Freshness > 0 {
		e.thresholds.Freshness = t.Freshness
	}
	if t.ActiveWindow > 0 {
		e.thresholds.ActiveWindow = t.ActiveWindow
	}
	if t.Retention > 0 {
		e.thresholds.Retention = t.Retention
	}
}

// SetReapInterval overrides how often the reaper sweeps.
func (e *Engine) SetReapInterval(d time.Duration) {
	if d > 0 {
		e.reapInterval = d
	}
}

// SetHistory attaches a sighting-history database. Without one, ingestion
// still works; history endpoints report ErrHistoryDisabled.
func (e *Engine) SetHistory(db *store.DB) {
	e.history = db
}

// SetHistoryRetention overrides how long history rows are kept.
func (e *Engine) SetHistoryRetention(d time.Duration) {
	if d > 0 {
		e.historyRetention = d
	}
}

// StartReapTimer sweeps once at startup and then on the configured interval.
func (e *Engine) StartReapTimer() {
	if removed := e.Reap(time.Now().UnixMilli()); removed > 0 {
		e.log.Info().Int("removed", removed).Msg("startup reap")
	}

	go func() {
		ticker := time.NewTicker(e.reapInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if removed := e.Reap(time.Now().UnixMilli()); removed > 0 {
					e.log.Info().Int("removed", removed).Msg("reap")
				}
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	close(e.stopCh)
}

// Reap evicts receivers whose last report is older than the retention
// threshold, prunes detections past the same threshold, and removes beacons
// left with no detections. Returns the number of records removed from the
// registry. Retention is coarser than the freshness/active windows on
// purpose: it bounds storage, not visibility.
func (e *Engine) Reap(now int64) int {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	cutoff := e.thresholds.Retention.Milliseconds()
	removed := 0

	for _, dev := range e.reg.Receivers() {
		if now-dev.Update > cutoff {
			if e.reg.RemoveReceiver(dev.ID) {
				e.log.Debug().Str("receiver", dev.ID).Msg("reaped inactive receiver")
				removed++
			}
		}
	}

	for _, b := range e.reg.Beacons() {
		for _, d := range b.Detections {
			ms, ok := ResolveTimestamp(d.UpdateTime)
			if ok && now-ms <= cutoff {
				continue
			}
			if e.reg.RemoveDetection(b.Address, d.ReceiverID) {
				removed++
			}
		}
		if e.reg.RemoveBeaconIfEmpty(b.Address) {
			e.log.Debug().Str("address", b.Address).Msg("reaped empty beacon")
			removed++
		}
	}

	if removed > 0 {
		if err := e.persist(); err != nil {
			e.log.Error().Err(err).Msg("persist after reap failed")
		}
	}

	if e.history != nil {
		if n, err := e.history.PruneSightings(now - e.historyRetention.Milliseconds()); err != nil {
			e.log.Warn().Err(err).Msg("prune sighting history failed")
		} else if n > 0 {
			e.log.Debug().Int64("rows", n).Msg("pruned sighting history")
		}
	}

	return removed
}

// Reset replaces the registry with an empty document and persists it.
// Authorization is the caller's problem; the engine just does the wipe.
func (e *Engine) Reset() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.reg.Replace(registry.Document{})
	return e.persist()
}

// persist writes the whole registry document. A failure is reported to the
// caller and logged but never rolled back into in-memory state.
func (e *Engine) persist() error {
	if e.files == nil {
		return nil
	}
	return e.files.Save(e.reg.Document())
}
