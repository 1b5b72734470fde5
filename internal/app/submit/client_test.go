package submit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitScoreSuccess(t *testing.T) {
	var got ScoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/score", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ScoreResponse{Success: true, IsHighScore: true, IsFirstTimeScore: true})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", 5*time.Second)
	resp, err := c.SubmitScore(context.Background(), ScoreRequest{
		ChartHash: "aa", InstrumentID: 0, DifficultyID: 3, Score: 1000,
	})
	require.NoError(t, err)
	assert.True(t, resp.IsFirstTimeScore)
	assert.Equal(t, "tok-1", got.AuthToken)
	assert.Equal(t, "raw", got.ScoreType)
	assert.Equal(t, "FIRST SCORE ON CHART!", resp.Summary())
}

func TestSubmitScoreUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "invalid auth token"})
	}))
	defer srv.Close()

	c := New(srv.URL, "bad", time.Second)
	_, err := c.SubmitScore(context.Background(), ScoreRequest{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSubmitScoreServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)
	_, err := c.SubmitScore(context.Background(), ScoreRequest{})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestSubmitScoreNetworkErrorIsTransient(t *testing.T) {
	c := New("http://127.0.0.1:1", "tok", 200*time.Millisecond)
	_, err := c.SubmitScore(context.Background(), ScoreRequest{})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestPairingFlow(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/pair/request":
			json.NewEncoder(w).Encode(map[string]any{"pairing_code": "ABC234", "expires_in": 300})
		case r.URL.Path == "/api/pair/status/client-1":
			if polls.Add(1) < 3 {
				json.NewEncoder(w).Encode(map[string]any{"paired": false})
			} else {
				json.NewEncoder(w).Encode(map[string]any{"paired": true, "auth_token": "tok-new"})
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "", time.Second)
	code, err := c.RequestPairing(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, "ABC234", code)

	// The poll interval is fixed, so three polls take a few seconds;
	// the context deadline only bounds the test generously.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	token, err := c.PollPairing(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-new", token)
}

func TestHashResolution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/unresolved_hashes":
			require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]any{"hashes": []string{"aa", "bb"}})
		case "/api/resolve_hashes":
			var req struct {
				Metadata []ResolvedChart `json:"metadata"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			json.NewEncoder(w).Encode(map[string]any{"updated_count": len(req.Metadata)})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", time.Second)
	hashes, err := c.UnresolvedHashes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"aa", "bb"}, hashes)

	n, err := c.ResolveHashes(context.Background(), []ResolvedChart{
		{ChartHash: "aa", Title: "Song A"},
		{ChartHash: "bb", Title: "Song B"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSummaryVariants(t *testing.T) {
	prev := 100000
	holder := "U2"
	best := 90000

	r := &ScoreResponse{IsRecordBroken: true, PreviousScore: &prev, PreviousHolder: &holder}
	assert.Equal(t, "RECORD BROKEN! (previous: U2, 100000 pts)", r.Summary())

	r = &ScoreResponse{IsPersonalBest: true}
	assert.Equal(t, "PERSONAL BEST!", r.Summary())

	r = &ScoreResponse{YourBestScore: &best}
	assert.Equal(t, "not a high score (your best: 90000)", r.Summary())
}
