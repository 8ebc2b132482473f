package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/tether/internal/engine"
)

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var report engine.Report
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}

	res, err := s.engine.Ingest(report, time.Now().UnixMilli())
	if errors.Is(err, engine.ErrMissingReceiver) {
		http.Error(w, `{"error":"receiver required"}`, http.StatusBadRequest)
		return
	}
	if err != nil {
		// The merge happened; only persistence failed. Report it without
		// pretending the in-memory state rolled back.
		s.log.Error().Err(err).Str("report_id", res.ReportID).Msg("report merged but not persisted")
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Snapshot()
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleBeacon(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")

	presence, err := s.engine.Presence(identity, time.Now().UnixMilli())
	if errors.Is(err, engine.ErrBeaconNotFound) {
		http.Error(w, `{"error":"beacon not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(presence)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	rows, err := s.engine.RecentSightings(address, limit)
	if errors.Is(err, engine.ErrHistoryDisabled) {
		http.Error(w, `{"error":"history not configured"}`, http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"address":   address,
		"sightings": rows,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary := s.engine.StatusSummary(time.Now().UnixMilli())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(); err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
		return
	}
	s.log.Info().Msg("registry reset")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}
