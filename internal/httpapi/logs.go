package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/ent0n29/convotone/internal/logstore"
	"github.com/ent0n29/convotone/internal/tone"
)

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	docs, err := s.logs.ListAll(r.Context())
	s.metrics.ObserveHTTP("list_logs", err)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list logs failed")
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if docs == nil {
		docs = []logstore.Document{}
	}
	respondJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDeleteLogs(w http.ResponseWriter, r *http.Request) {
	n, err := s.logs.DeleteAll(r.Context())
	s.metrics.ObserveHTTP("delete_logs", err)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("delete logs failed")
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondText(w, http.StatusOK, fmt.Sprintf("Deleted %d", n))
}

// handleTone never fails: the aggregator folds errors into an empty list.
func (s *Server) handleTone(w http.ResponseWriter, r *http.Request) {
	s.metrics.ObserveHTTP("tone", nil)
	if s.tones == nil {
		respondText(w, http.StatusOK, tone.NotConfiguredMessage)
		return
	}
	res := s.tones.Tone(r.Context(), chi.URLParam(r, "conversationID"))
	if !res.Configured {
		respondText(w, http.StatusOK, tone.NotConfiguredMessage)
		return
	}
	respondJSON(w, http.StatusOK, res.Tones)
}
