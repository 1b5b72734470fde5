// Package submit is the client-side transport to the score server:
// score submission, pairing, and chart-metadata resolution.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Timing of the pairing poll loop.
const (
	PairingPollInterval = 2 * time.Second
	PairingDeadline     = 300 * time.Second
)

// ErrUnauthorized marks a 401: re-submitting the same token will not
// help, the user must re-pair.
var ErrUnauthorized = errors.New("submit: invalid auth token")

// ErrTransient marks failures worth retrying on the next score event
// or resync: timeouts, connection errors, server 5xx.
var ErrTransient = errors.New("submit: transient transport error")

// Client talks to the score server.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
}

// New creates a client. The timeout bounds every request.
func New(baseURL, authToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		http:      &http.Client{Timeout: timeout},
	}
}

// SetAuthToken replaces the token after a pairing.
func (c *Client) SetAuthToken(token string) { c.authToken = token }

// ScoreRequest is the POST /api/score payload.
type ScoreRequest struct {
	AuthToken         string   `json:"auth_token"`
	ChartHash         string   `json:"chart_hash"`
	InstrumentID      int      `json:"instrument_id"`
	DifficultyID      int      `json:"difficulty_id"`
	Score             int      `json:"score"`
	CompletionPercent float64  `json:"completion_percent"`
	Stars             int      `json:"stars"`
	SongTitle         string   `json:"song_title,omitempty"`
	SongArtist        string   `json:"song_artist,omitempty"`
	SongCharter       string   `json:"song_charter,omitempty"`
	ScoreType         string   `json:"score_type"`
	NotesHit          *int     `json:"notes_hit,omitempty"`
	NotesTotal        *int     `json:"notes_total,omitempty"`
	BestStreak        *int     `json:"best_streak,omitempty"`
	TotalNotesInChart *int     `json:"total_notes_in_chart,omitempty"`
	NPS               *float64 `json:"nps,omitempty"`
	PlayCount         *int     `json:"play_count,omitempty"`
}

// ScoreResponse is the server's classification of a submission.
type ScoreResponse struct {
	Success          bool    `json:"success"`
	IsHighScore      bool    `json:"is_high_score"`
	IsRecordBroken   bool    `json:"is_record_broken"`
	IsFirstTimeScore bool    `json:"is_first_time_score"`
	IsPersonalBest   bool    `json:"is_personal_best"`
	IsFullCombo      bool    `json:"is_full_combo"`
	IsFirstFC        bool    `json:"is_first_fc"`
	PreviousScore    *int    `json:"previous_score"`
	PreviousHolder   *string `json:"previous_holder"`
	YourBestScore    *int    `json:"your_best_score"`
	Error            string  `json:"error"`
}

// Summary renders the one-line terminal outcome for a submission.
func (r *ScoreResponse) Summary() string {
	switch {
	case r.IsRecordBroken:
		if r.PreviousHolder != nil && r.PreviousScore != nil {
			return fmt.Sprintf("RECORD BROKEN! (previous: %s, %d pts)", *r.PreviousHolder, *r.PreviousScore)
		}
		return "RECORD BROKEN!"
	case r.IsFirstTimeScore:
		return "FIRST SCORE ON CHART!"
	case r.IsPersonalBest:
		return "PERSONAL BEST!"
	case r.YourBestScore != nil:
		return fmt.Sprintf("not a high score (your best: %d)", *r.YourBestScore)
	default:
		return "submitted"
	}
}

// SubmitScore posts one score. The auth token is filled in from the
// client; the caller builds the rest of the payload.
func (c *Client) SubmitScore(ctx context.Context, req ScoreRequest) (*ScoreResponse, error) {
	req.AuthToken = c.authToken
	if req.ScoreType == "" {
		req.ScoreType = "raw"
	}

	var resp ScoreResponse
	status, err := c.postJSON(ctx, "/api/score", req, &resp)
	if err != nil {
		return nil, errors.WithSecondaryError(ErrTransient, err)
	}
	switch {
	case status == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case status >= 500:
		return nil, errors.Wrapf(ErrTransient, "server returned %d", status)
	case status != http.StatusOK:
		return nil, errors.Newf("server rejected submission (%d): %s", status, resp.Error)
	}
	return &resp, nil
}

// RequestPairing asks the server for a pairing code for this client.
func (c *Client) RequestPairing(ctx context.Context, clientID string) (string, error) {
	var resp struct {
		PairingCode string `json:"pairing_code"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	status, err := c.postJSON(ctx, "/api/pair/request", map[string]string{"client_id": clientID}, &resp)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", errors.Newf("pairing request failed (%d): %s", status, resp.Error)
	}
	return resp.PairingCode, nil
}

// PollPairing polls the pairing status every 2 s until the code is
// redeemed or the 300 s deadline passes, returning the issued token.
func (c *Client) PollPairing(ctx context.Context, clientID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, PairingDeadline)
	defer cancel()

	ticker := time.NewTicker(PairingPollInterval)
	defer ticker.Stop()
	for {
		var resp struct {
			Paired    bool   `json:"paired"`
			AuthToken string `json:"auth_token"`
		}
		status, err := c.getJSON(ctx, "/api/pair/status/"+clientID, "", &resp)
		if err == nil && status == http.StatusOK && resp.Paired {
			return resp.AuthToken, nil
		}
		if err != nil {
			zlog.Debug().Err(err).Msg("Pairing poll failed, retrying")
		}

		select {
		case <-ctx.Done():
			return "", errors.Wrap(ctx.Err(), "pairing not completed in time")
		case <-ticker.C:
		}
	}
}

// ResolvedChart is one chart-metadata resolution.
type ResolvedChart struct {
	ChartHash string `json:"chart_hash"`
	Title     string `json:"title"`
	Artist    string `json:"artist,omitempty"`
	Charter   string `json:"charter,omitempty"`
}

// UnresolvedHashes fetches the chart ids the server is missing
// metadata for.
func (c *Client) UnresolvedHashes(ctx context.Context) ([]string, error) {
	var resp struct {
		Hashes []string `json:"hashes"`
	}
	status, err := c.getJSON(ctx, "/api/unresolved_hashes", c.authToken, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if status != http.StatusOK {
		return nil, errors.Newf("unresolved hashes failed (%d)", status)
	}
	return resp.Hashes, nil
}

// ResolveHashes uploads locally-resolved chart metadata.
func (c *Client) ResolveHashes(ctx context.Context, charts []ResolvedChart) (int, error) {
	var resp struct {
		UpdatedCount int `json:"updated_count"`
	}
	status, err := c.postJSONAuth(ctx, "/api/resolve_hashes",
		map[string]any{"metadata": charts}, &resp)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, errors.Newf("resolve hashes failed (%d)", status)
	}
	return resp.UpdatedCount, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) (int, error) {
	return c.do(ctx, http.MethodPost, path, "", body, out)
}

func (c *Client) postJSONAuth(ctx context.Context, path string, body, out any) (int, error) {
	return c.do(ctx, http.MethodPost, path, c.authToken, body, out)
}

func (c *Client) getJSON(ctx context.Context, path, token string, out any) (int, error) {
	return c.do(ctx, http.MethodGet, path, token, nil, out)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "perform request")
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, errors.Wrap(err, "decode response")
		}
	}
	return resp.StatusCode, nil
}
