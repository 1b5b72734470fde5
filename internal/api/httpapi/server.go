// Package httpapi serves the score-submission HTTP surface.
package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/goofenthol/chscore/internal/app/announce"
	"github.com/goofenthol/chscore/internal/infra/botconfig"
	"github.com/goofenthol/chscore/internal/infra/store"
)

// Publisher delivers announcements to the chat channel. The transport
// itself lives outside this module; delivery failures are logged, never
// silently dropped.
type Publisher interface {
	Publish(a *announce.Announcement) error
}

// Server holds the API dependencies.
type Server struct {
	store     *store.Store
	config    *botconfig.Manager
	publisher Publisher

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	failures map[string]*failureWindow
}

type failureWindow struct {
	count int
	since time.Time
}

// New assembles the API server.
func New(st *store.Store, cfg *botconfig.Manager, pub Publisher) *Server {
	return &Server{
		store:     st,
		config:    cfg,
		publisher: pub,
		limiters:  make(map[string]*rate.Limiter),
		failures:  make(map[string]*failureWindow),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/score", s.rateLimited(s.handleScore))
	mux.HandleFunc("POST /api/pair/request", s.rateLimited(s.handlePairRequest))
	mux.HandleFunc("GET /api/pair/status/{client_id}", s.rateLimited(s.handlePairStatus))
	mux.HandleFunc("GET /api/unresolved_hashes", s.rateLimited(s.handleUnresolvedHashes))
	mux.HandleFunc("POST /api/resolve_hashes", s.rateLimited(s.handleResolveHashes))
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "chscore server",
		"version": botconfig.BotVersion,
		"status":  "online",
		"endpoints": map[string]string{
			"POST /api/score":                  "Submit a score",
			"POST /api/pair/request":           "Request a pairing code",
			"GET /api/pair/status/{client_id}": "Check pairing status",
			"GET /api/unresolved_hashes":       "Chart ids missing metadata",
			"POST /api/resolve_hashes":         "Resolve chart metadata",
			"GET /health":                      "Health check",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// rateLimited applies the configured per-client token bucket and the
// failed-auth lockout.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := s.config.API().RateLimiting
		if !cfg.Enabled {
			next(w, r)
			return
		}
		client := clientAddr(r)

		s.mu.Lock()
		if fw, ok := s.failures[client]; ok && cfg.FailedAuthLimit > 0 {
			if time.Since(fw.since) > time.Hour {
				delete(s.failures, client)
			} else if fw.count >= cfg.FailedAuthLimit {
				s.mu.Unlock()
				writeError(w, http.StatusTooManyRequests, "too many failed authentications")
				return
			}
		}
		lim, ok := s.limiters[client]
		if !ok {
			perMinute := cfg.MaxRequestsPerMinute
			if perMinute <= 0 {
				perMinute = 60
			}
			lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)
			s.limiters[client] = lim
		}
		s.mu.Unlock()

		if !lim.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// noteAuthFailure counts a failed authentication against the client.
func (s *Server) noteAuthFailure(r *http.Request) {
	client := clientAddr(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	fw, ok := s.failures[client]
	if !ok || time.Since(fw.since) > time.Hour {
		fw = &failureWindow{since: time.Now()}
		s.failures[client] = fw
	}
	fw.count++
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// bearerToken extracts a bearer token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zlog.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// publish hands an announcement to the transport; failures are logged.
func (s *Server) publish(a *announce.Announcement) {
	if s.publisher == nil || a == nil {
		return
	}
	if err := s.publisher.Publish(a); err != nil {
		zlog.Error().Err(err).Str("category", string(a.Category)).Msg("Announcement delivery failed")
	}
}
