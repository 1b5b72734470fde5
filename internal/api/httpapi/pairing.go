package httpapi

import (
	"encoding/json"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	"github.com/goofenthol/chscore/internal/infra/store"
)

func (s *Server) handlePairRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "missing required field: client_id")
		return
	}

	code, err := s.store.CreatePairingCode(r.Context(), req.ClientID)
	if err != nil {
		zlog.Error().Err(err).Msg("Failed to create pairing code")
		writeError(w, http.StatusInternalServerError, "pairing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pairing_code": code,
		"expires_in":   int(store.PairingTTL.Seconds()),
	})
}

func (s *Server) handlePairStatus(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client_id")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "missing client_id")
		return
	}

	paired, token, err := s.store.PairingStatus(r.Context(), clientID)
	if err != nil {
		zlog.Error().Err(err).Msg("Failed to read pairing status")
		writeError(w, http.StatusInternalServerError, "pairing lookup failed")
		return
	}
	resp := map[string]any{"paired": paired}
	if paired {
		resp["auth_token"] = token
	}
	writeJSON(w, http.StatusOK, resp)
}
