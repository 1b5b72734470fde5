package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/goofenthol/chscore/internal/app/announce"
	"github.com/goofenthol/chscore/internal/domain/score"
	"github.com/goofenthol/chscore/internal/domain/song"
	"github.com/goofenthol/chscore/internal/infra/botconfig"
	"github.com/goofenthol/chscore/internal/infra/store"
)

// scoreRequest is the POST /api/score body.
type scoreRequest struct {
	AuthToken         string   `json:"auth_token"`
	ChartHash         string   `json:"chart_hash"`
	InstrumentID      *int     `json:"instrument_id"`
	DifficultyID      *int     `json:"difficulty_id"`
	Score             *int     `json:"score"`
	CompletionPercent float64  `json:"completion_percent"`
	Stars             int      `json:"stars"`
	SongTitle         string   `json:"song_title"`
	SongArtist        string   `json:"song_artist"`
	SongCharter       string   `json:"song_charter"`
	ScoreType         string   `json:"score_type"` // "raw" | "rich"
	NotesHit          *int     `json:"notes_hit"`
	NotesTotal        *int     `json:"notes_total"`
	BestStreak        *int     `json:"best_streak"`
	TotalNotesInChart *int     `json:"total_notes_in_chart"`
	NPS               *float64 `json:"nps"`
	PlayCount         *int     `json:"play_count"`
}

func (r *scoreRequest) validate() error {
	switch {
	case r.AuthToken == "":
		return errors.New("missing required field: auth_token")
	case r.ChartHash == "":
		return errors.New("missing required field: chart_hash")
	case r.InstrumentID == nil:
		return errors.New("missing required field: instrument_id")
	case r.DifficultyID == nil:
		return errors.New("missing required field: difficulty_id")
	case r.Score == nil:
		return errors.New("missing required field: score")
	}
	if !score.Instrument(*r.InstrumentID).Valid() {
		return errors.Newf("unknown instrument_id %d", *r.InstrumentID)
	}
	if !score.Difficulty(*r.DifficultyID).Valid() {
		return errors.Newf("unknown difficulty_id %d", *r.DifficultyID)
	}
	return nil
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.store.SubmitScore(r.Context(), store.Submission{
		AuthToken:         req.AuthToken,
		ChartID:           score.ChartID(req.ChartHash),
		Instrument:        *req.InstrumentID,
		Difficulty:        *req.DifficultyID,
		Score:             *req.Score,
		CompletionPercent: req.CompletionPercent,
		Stars:             req.Stars,
		SongTitle:         req.SongTitle,
		SongArtist:        req.SongArtist,
		SongCharter:       req.SongCharter,
		NotesHit:          req.NotesHit,
		NotesTotal:        req.NotesTotal,
		TotalNotesInChart: req.TotalNotesInChart,
	})
	if errors.Is(err, store.ErrUnauthorized) {
		s.noteAuthFailure(r)
		writeError(w, http.StatusUnauthorized, "invalid auth token")
		return
	}
	if err != nil {
		zlog.Error().Err(err).Msg("Score submission failed")
		writeError(w, http.StatusInternalServerError, "submission failed")
		return
	}

	// A chart parse travelled with the submission: keep the chart
	// metadata table current for the FC backfill and hardest queries.
	if req.TotalNotesInChart != nil {
		meta := store.ChartMetadata{
			ChartID:    score.ChartID(req.ChartHash),
			Instrument: *req.InstrumentID,
			Difficulty: *req.DifficultyID,
			TotalNotes: *req.TotalNotesInChart,
			SongName:   req.SongTitle,
			Artist:     req.SongArtist,
			Charter:    req.SongCharter,
		}
		if req.NPS != nil {
			meta.NoteDensity = *req.NPS
		}
		if err := s.store.UpsertChartMetadata(r.Context(), meta); err != nil {
			zlog.Warn().Err(err).Msg("Failed to store chart metadata")
		}
	}

	s.announceResult(&req, result)

	resp := map[string]any{
		"success":             true,
		"message":             "Score submitted successfully",
		"is_high_score":       result.IsHighScore,
		"is_record_broken":    result.IsRecordBroken,
		"is_first_time_score": result.IsFirstTime,
		"is_personal_best":    result.IsPersonalBest,
		"is_full_combo":       result.IsFullCombo,
		"is_first_fc":         result.IsFirstFC,
		"your_best_score":     result.YourBestScore,
	}
	if result.PreviousScore != nil {
		resp["previous_score"] = *result.PreviousScore
	}
	if result.PreviousHolder != nil {
		resp["previous_holder"] = result.PreviousHolder.DisplayName
	}
	writeJSON(w, http.StatusOK, resp)
}

// announceResult renders and publishes the announcements a submission
// earned: its classification category, plus a full-combo announcement
// when the orthogonal flag is set.
func (s *Server) announceResult(req *scoreRequest, result *store.SubmitResult) {
	cfg := s.config.Announcements()
	in := announceInput(req, result)

	var category botconfig.Category
	switch {
	case result.IsRecordBroken:
		category = botconfig.CategoryRecordBreak
	case result.IsFirstTime:
		category = botconfig.CategoryFirstTime
	case result.IsPersonalBest:
		category = botconfig.CategoryPersonalBest
	}
	if category != "" {
		in.Category = category
		if a, ok := announce.Format(in, cfg); ok {
			s.publish(a)
		}
	}

	if result.IsFullCombo {
		in.Category = botconfig.CategoryFullCombo
		in.IsFirstFC = result.IsFirstFC
		if a, ok := announce.Format(in, cfg); ok {
			s.publish(a)
		}
	}
}

func announceInput(req *scoreRequest, result *store.SubmitResult) announce.Input {
	in := announce.Input{
		UserName:       result.User.DisplayName,
		UserExternalID: result.User.ExternalID,
		Meta:           metaFromRequest(req),
		Score: announce.Score{
			ChartID:           score.ChartID(req.ChartHash),
			Instrument:        score.Instrument(*req.InstrumentID),
			Difficulty:        score.Difficulty(*req.DifficultyID),
			Value:             *req.Score,
			Stars:             req.Stars,
			CompletionPercent: req.CompletionPercent,
			NotesHit:          req.NotesHit,
			NotesTotal:        req.NotesTotal,
			BestStreak:        req.BestStreak,
			PlayCount:         req.PlayCount,
		},
		PreviousScore:     result.PreviousScore,
		UserPreviousScore: result.UserPreviousScore,
		Now:               time.Now().UTC(),
	}
	if result.PreviousHolder != nil {
		in.PreviousHolder = &result.PreviousHolder.DisplayName
		in.PreviousHolderExternalID = &result.PreviousHolder.ExternalID
	}
	if result.PreviousRecordAt != nil {
		if t, err := time.Parse(time.RFC3339Nano, *result.PreviousRecordAt); err == nil {
			in.PreviousRecordAt = &t
		}
	}
	return in
}

func metaFromRequest(req *scoreRequest) song.Metadata {
	return song.Metadata{
		ChartID: score.ChartID(req.ChartHash),
		Title:   req.SongTitle,
		Artist:  req.SongArtist,
		Charter: req.SongCharter,
	}
}
