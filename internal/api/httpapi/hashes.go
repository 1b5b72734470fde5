package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/goofenthol/chscore/internal/domain/score"
	"github.com/goofenthol/chscore/internal/domain/song"
	"github.com/goofenthol/chscore/internal/infra/store"
)

func (s *Server) handleUnresolvedHashes(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.UserByAuthToken(r.Context(), bearerToken(r))
	if errors.Is(err, store.ErrUnauthorized) {
		s.noteAuthFailure(r)
		writeError(w, http.StatusUnauthorized, "invalid auth token")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	hashes, err := s.store.UnresolvedChartIDs(r.Context(), user.ID)
	if err != nil {
		zlog.Error().Err(err).Msg("Failed to list unresolved chart ids")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if hashes == nil {
		hashes = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"hashes": hashes})
}

func (s *Server) handleResolveHashes(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.UserByAuthToken(r.Context(), bearerToken(r)); err != nil {
		if errors.Is(err, store.ErrUnauthorized) {
			s.noteAuthFailure(r)
			writeError(w, http.StatusUnauthorized, "invalid auth token")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	var req struct {
		Metadata []struct {
			ChartHash string `json:"chart_hash"`
			Title     string `json:"title"`
			Artist    string `json:"artist"`
			Charter   string `json:"charter"`
		} `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	metas := make([]song.Metadata, 0, len(req.Metadata))
	for _, m := range req.Metadata {
		metas = append(metas, song.Metadata{
			ChartID: score.ChartID(m.ChartHash),
			Title:   m.Title,
			Artist:  m.Artist,
			Charter: m.Charter,
		})
	}
	updated, err := s.store.ResolveSongs(r.Context(), metas)
	if err != nil {
		zlog.Error().Err(err).Msg("Failed to resolve chart metadata")
		writeError(w, http.StatusInternalServerError, "resolve failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated_count": updated})
}
