package engine

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/lazypower/tether/internal/registry"
	"github.com/lazypower/tether/internal/store"
)

// Report is one receiver's sighting batch, as posted over HTTP or published
// over MQTT. Only the receiver id is required; a report may be fragmented
// into ordered batches, in which case batch/total_batches say which fragment
// this is.
type Report struct {
	Receiver     string         `json:"receiver"`
	Name         string         `json:"name,omitempty"`
	Kind         string         `json:"type,omitempty"`
	Batch        int            `json:"batch,omitempty"`
	TotalBatches int            `json:"total_batches,omitempty"`
	Objects      []ReportObject `json:"objects"`
}

// ReportObject is one observed beacon within a report.
type ReportObject struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	RSSI    Signal `json:"rssi"`
	Online  bool   `json:"online"`
}

// Signal absorbs the two wire shapes receivers send for signal strength: a
// bare number, or an object carrying a smoothed "average" and an
// instantaneous "current" reading. Normalization to a single scalar happens
// here, at the ingestion boundary; nothing downstream ever sees the union.
type Signal struct {
	Value int
}

func (s Signal) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Value)
}

// UnmarshalJSON resolves the union: bare number as-is, otherwise average
// preferred, then current, then zero.
func (s *Signal) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		s.Value = int(math.Round(n))
		return nil
	}

	var structured struct {
		Average *float64 `json:"average"`
		Current *float64 `json:"current"`
	}
	if err := json.Unmarshal(b, &structured); err != nil {
		return fmt.Errorf("signal strength: %w", err)
	}
	switch {
	case structured.Average != nil:
		s.Value = int(math.Round(*structured.Average))
	case structured.Current != nil:
		s.Value = int(math.Round(*structured.Current))
	default:
		s.Value = 0
	}
	return nil
}

// IngestResult summarizes one merged report.
type IngestResult struct {
	ReportID string `json:"report_id"`
	Merged   int    `json:"merged"`
	Skipped  int    `json:"skipped"`
}

// Ingest folds one report into the registry and persists the merged
// document. A report with no receiver id is rejected whole, before any
// mutation; entries with no address are skipped individually. Replaying an
// identical report only refreshes timestamps — detections are keyed by
// (beacon, receiver) and overwritten in place, never appended.
func (e *Engine) Ingest(report Report, now int64) (IngestResult, error) {
	res := IngestResult{ReportID: uuid.NewString()}

	if report.Receiver == "" {
		e.log.Warn().Str("report_id", res.ReportID).Msg("rejecting report without receiver id")
		return res, ErrMissingReceiver
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	dev := e.reg.UpsertReceiver(report.Receiver, report.Name, report.Kind, report.Batch, report.TotalBatches, now)
	receiverName := dev.Name
	if receiverName == "" {
		receiverName = report.Receiver
	}

	sightings := make([]store.Sighting, 0, len(report.Objects))
	for _, obj := range report.Objects {
		if obj.Address == "" {
			e.log.Warn().
				Str("report_id", res.ReportID).
				Str("receiver", report.Receiver).
				Msg("skipping sighting without address")
			res.Skipped++
			continue
		}

		e.reg.UpsertBeacon(obj.Address, obj.Name, now)
		e.reg.UpsertDetection(obj.Address, report.Receiver, registry.Detection{
			ReceiverName: receiverName,
			RSSI:         obj.RSSI.Value,
			Online:       obj.Online,
			UpdateTime:   registry.Timestamp{Millis: now},
		})
		res.Merged++

		sightings = append(sightings, store.Sighting{
			ReportID:   res.ReportID,
			ReceiverID: report.Receiver,
			Address:    obj.Address,
			RSSI:       obj.RSSI.Value,
			Online:     obj.Online,
			SeenAt:     now,
		})
	}

	// History is best-effort; a failed append never fails the merge.
	if e.history != nil {
		if err := e.history.AppendSightings(sightings); err != nil {
			e.log.Warn().Err(err).Str("report_id", res.ReportID).Msg("append sighting history failed")
		}
	}

	if err := e.persist(); err != nil {
		e.log.Error().Err(err).Str("report_id", res.ReportID).Msg("persist after ingest failed")
		return res, fmt.Errorf("persist registry: %w", err)
	}

	e.log.Debug().
		Str("report_id", res.ReportID).
		Str("receiver", report.Receiver).
		Int("merged", res.Merged).
		Int("skipped", res.Skipped).
		Msg("report merged")
	return res, nil
}
