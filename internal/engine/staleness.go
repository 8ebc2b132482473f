package engine

import (
	"time"

	"github.com/lazypower/tether/internal/registry"
)

// legacyTimeLayout is the localized date format older receiver firmware
// reports instead of epoch milliseconds: "YYYY/M/D H:M:S", local time, no
// zone offset. Both parse paths stay — this is a compatibility seam between
// two generations of producers, not an inconsistency.
const legacyTimeLayout = "2006/1/2 15:4:5"

// ResolveTimestamp turns a detection timestamp into epoch milliseconds.
// It prefers the numeric form, falls back to parsing the legacy string, and
// reports false when neither resolves. Callers must treat an unresolvable
// timestamp as stale, never as fresh.
func ResolveTimestamp(ts registry.Timestamp) (int64, bool) {
	if ts.Millis > 0 {
		return ts.Millis, true
	}
	if ts.Text != "" {
		t, err := time.ParseInLocation(legacyTimeLayout, ts.Text, time.Local)
		if err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// Fresh reports whether a detection timestamp is within threshold of now.
// The boundary is inclusive: an age exactly equal to the threshold still
// counts as fresh.
func Fresh(ts registry.Timestamp, now int64, threshold time.Duration) bool {
	ms, ok := ResolveTimestamp(ts)
	if !ok {
		return false
	}
	return now-ms <= threshold.Milliseconds()
}
