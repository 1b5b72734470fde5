package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goofenthol/chscore/internal/app/announce"
	"github.com/goofenthol/chscore/internal/infra/botconfig"
	"github.com/goofenthol/chscore/internal/infra/store"
)

type capturePublisher struct {
	mu   sync.Mutex
	sent []*announce.Announcement
}

func (c *capturePublisher) Publish(a *announce.Announcement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, a)
	return nil
}

func (c *capturePublisher) categories() []botconfig.Category {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []botconfig.Category
	for _, a := range c.sent {
		out = append(out, a.Category)
	}
	return out
}

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *capturePublisher) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "scores.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg, err := botconfig.Load(filepath.Join(dir, "bot_config.json"))
	require.NoError(t, err)

	pub := &capturePublisher{}
	srv := httptest.NewServer(New(st, cfg, pub).Handler())
	t.Cleanup(srv.Close)
	return srv, st, pub
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	return resp, doc
}

func getJSON(t *testing.T, url, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	return resp, doc
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, doc := getJSON(t, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", doc["status"])
	assert.NotEmpty(t, doc["timestamp"])
}

func TestScoreFirstTime(t *testing.T) {
	srv, st, pub := newTestServer(t)
	user, err := st.CreateUser(context.Background(), "ext-1", "U1")
	require.NoError(t, err)

	resp, doc := postJSON(t, srv.URL+"/api/score", map[string]any{
		"auth_token":         user.AuthToken,
		"chart_hash":         "00112233445566778899aabbccddeeff",
		"instrument_id":      0,
		"difficulty_id":      3,
		"score":              100000,
		"stars":              5,
		"completion_percent": 95,
		"song_title":         "Amazing Song",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, doc["success"])
	assert.Equal(t, true, doc["is_high_score"])
	assert.Equal(t, true, doc["is_first_time_score"])
	assert.Equal(t, false, doc["is_record_broken"])
	assert.Equal(t, false, doc["is_personal_best"])

	assert.Equal(t, []botconfig.Category{botconfig.CategoryFirstTime}, pub.categories())
}

func TestScoreRecordBreakResponse(t *testing.T) {
	srv, st, pub := newTestServer(t)
	ctx := context.Background()
	u1, err := st.CreateUser(ctx, "ext-1", "U1")
	require.NoError(t, err)
	u2, err := st.CreateUser(ctx, "ext-2", "U2")
	require.NoError(t, err)

	_, _ = postJSON(t, srv.URL+"/api/score", map[string]any{
		"auth_token": u2.AuthToken, "chart_hash": "00112233445566778899aabbccddeeff",
		"instrument_id": 0, "difficulty_id": 3, "score": 100000,
	})

	resp, doc := postJSON(t, srv.URL+"/api/score", map[string]any{
		"auth_token": u1.AuthToken, "chart_hash": "00112233445566778899aabbccddeeff",
		"instrument_id": 0, "difficulty_id": 3, "score": 150000,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, doc["is_record_broken"])
	assert.Equal(t, float64(100000), doc["previous_score"])
	assert.Equal(t, "U2", doc["previous_holder"])

	cats := pub.categories()
	assert.Contains(t, cats, botconfig.CategoryRecordBreak)
}

func TestScoreMalformed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, doc := postJSON(t, srv.URL+"/api/score", map[string]any{
		"auth_token": "x", "chart_hash": "abc",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, doc["success"])

	raw := bytes.NewReader([]byte("{not json"))
	r2, err := http.Post(srv.URL+"/api/score", "application/json", raw)
	require.NoError(t, err)
	defer r2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r2.StatusCode)
}

func TestScoreUnauthorized(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, doc := postJSON(t, srv.URL+"/api/score", map[string]any{
		"auth_token": "bogus", "chart_hash": "00112233445566778899aabbccddeeff",
		"instrument_id": 0, "difficulty_id": 3, "score": 1000,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, false, doc["success"])
}

func TestPairingEndpoints(t *testing.T) {
	srv, st, _ := newTestServer(t)

	resp, doc := postJSON(t, srv.URL+"/api/pair/request", map[string]any{"client_id": "client-1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	code, _ := doc["pairing_code"].(string)
	assert.Len(t, code, 6)
	assert.Equal(t, float64(300), doc["expires_in"])

	resp, doc = getJSON(t, srv.URL+"/api/pair/status/client-1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, doc["paired"])

	ok, err := st.CompletePairing(context.Background(), code, "ext-5", "NewUser")
	require.NoError(t, err)
	require.True(t, ok)

	resp, doc = getJSON(t, srv.URL+"/api/pair/status/client-1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, doc["paired"])
	assert.NotEmpty(t, doc["auth_token"])
}

func TestHashResolutionEndpoints(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()
	user, err := st.CreateUser(ctx, "ext-1", "U1")
	require.NoError(t, err)

	// A score with no song metadata leaves the chart unresolved.
	_, _ = postJSON(t, srv.URL+"/api/score", map[string]any{
		"auth_token": user.AuthToken, "chart_hash": "00112233445566778899aabbccddeeff",
		"instrument_id": 0, "difficulty_id": 3, "score": 42000,
	})

	resp, doc := getJSON(t, srv.URL+"/api/unresolved_hashes", user.AuthToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	hashes, _ := doc["hashes"].([]any)
	require.Len(t, hashes, 1)
	assert.Equal(t, "00112233445566778899aabbccddeeff", hashes[0])

	// Unauthenticated access is rejected.
	resp, _ = getJSON(t, srv.URL+"/api/unresolved_hashes", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Resolve the hash; it disappears from the unresolved list.
	raw, err := json.Marshal(map[string]any{
		"metadata": []map[string]any{{
			"chart_hash": "00112233445566778899aabbccddeeff",
			"title":      "Resolved Song",
			"artist":     "Band",
		}},
	})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/resolve_hashes", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+user.AuthToken)
	r2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer r2.Body.Close()
	var resolveDoc map[string]any
	require.NoError(t, json.NewDecoder(r2.Body).Decode(&resolveDoc))
	assert.Equal(t, float64(1), resolveDoc["updated_count"])

	_, doc = getJSON(t, srv.URL+"/api/unresolved_hashes", user.AuthToken)
	assert.Empty(t, doc["hashes"])
}

func TestRateLimiting(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()

	// Tighten the limit via the raw config used by the server.
	cfgPath := filepath.Join(t.TempDir(), "bot_config.json")
	cfg, err := botconfig.Load(cfgPath)
	require.NoError(t, err)
	cfg.Set("api.rate_limiting.max_requests_per_minute", 3)

	pub := &capturePublisher{}
	tight := httptest.NewServer(New(st, cfg, pub).Handler())
	defer tight.Close()

	user, err := st.CreateUser(ctx, "ext-1", "U1")
	require.NoError(t, err)

	var saw429 bool
	for i := 0; i < 10; i++ {
		resp, _ := postJSON(t, tight.URL+"/api/score", map[string]any{
			"auth_token": user.AuthToken, "chart_hash": "00112233445566778899aabbccddeeff",
			"instrument_id": 0, "difficulty_id": 3, "score": 1000 + i,
		})
		if resp.StatusCode == http.StatusTooManyRequests {
			saw429 = true
			break
		}
	}
	assert.True(t, saw429)
	_ = srv
}

func TestIndexEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, doc := getJSON(t, srv.URL+"/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "online", doc["status"])
}
