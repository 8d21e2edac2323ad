package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"dorian/internal/googleauth"
	"dorian/internal/ratelimit"
	"dorian/internal/util"
	"dorian/services/library/internal/app"
	"dorian/services/library/internal/assistant"
	"dorian/services/library/internal/security"
)

// TokenVerifier resolves a bearer token to an allowed user.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (googleauth.User, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App       *app.App
	Assistant *assistant.Assistant
	// Voice is optional; without it audio questions are rejected.
	Voice          *assistant.Voice
	Auth           TokenVerifier
	TrustedProxies *util.TrustedProxies
	CORSOrigins    []string

	// Redis backs inbound limits on the LLM-backed endpoints and security
	// alerts. Both are disabled without RedisAddr.
	RedisAddr               string
	RedisPassword           string
	AskRateLimitPerMinute   int
	AudioRateLimitPerMinute int

	MaxUploadBytes int64
	MaxAudioBytes  int64
}

// Server exposes the library HTTP API.
type Server struct {
	app            *app.App
	assistant      *assistant.Assistant
	voice          *assistant.Voice
	auth           TokenVerifier
	trustedProxies *util.TrustedProxies
	corsOrigins    []string
	mux            *http.ServeMux
	maxUploadBytes int64
	maxAudioBytes  int64
	redisClient    *redis.Client
	askLimiter     *ratelimit.FixedWindowLimiter
	audioLimiter   *ratelimit.FixedWindowLimiter
	alerter        *security.Alerter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil || cfg.Assistant == nil {
		return nil, errors.New("app and assistant are required")
	}
	s := &Server{
		app:            cfg.App,
		assistant:      cfg.Assistant,
		voice:          cfg.Voice,
		auth:           cfg.Auth,
		trustedProxies: cfg.TrustedProxies,
		corsOrigins:    cfg.CORSOrigins,
		mux:            http.NewServeMux(),
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes, 200<<20),
		maxAudioBytes:  normalizeMaxBytes(cfg.MaxAudioBytes, 20<<20),
	}

	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		s.redisClient = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPassword})
		newLimiter := func(name string, limit, fallback int) (*ratelimit.FixedWindowLimiter, error) {
			if limit <= 0 {
				limit = fallback
			}
			limiter, err := ratelimit.NewFixedWindowLimiter(s.redisClient, "dorian:ratelimit:"+name, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if s.askLimiter, err = newLimiter("ask", cfg.AskRateLimitPerMinute, 20); err != nil {
			return nil, err
		}
		if s.audioLimiter, err = newLimiter("audio", cfg.AudioRateLimitPerMinute, 6); err != nil {
			return nil, err
		}
		if s.alerter, err = security.NewAlerter(s.redisClient, "dorian:alerts"); err != nil {
			return nil, err
		}
	}

	s.routes()
	return s, nil
}

// Close releases the Redis connection pool, if any.
func (s *Server) Close() error {
	if s.redisClient == nil {
		return nil
	}
	return s.redisClient.Close()
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(
		util.WithSecurityHeaders("/static/")(util.WithCORS(s.corsOrigins)(s.mux)),
	))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/check", s.handleAuthCheck)
	s.mux.Handle("/api/auth/status", s.authenticated(s.handleAuthStatus))

	// assistant
	s.mux.Handle("/api/ask-gemini", s.authenticated(s.handleAsk))
	s.mux.Handle("/api/questions", s.authenticated(s.handleAsk))
	s.mux.Handle("/api/transcribe-audio", s.authenticated(s.handleTranscribe))

	// library
	s.mux.Handle("/api/books", s.authenticated(s.handleBooks))
	s.mux.Handle("/api/books/", s.authenticated(s.handleBookRoutes))
	s.mux.Handle("/api/upload/", s.authenticated(s.handleUpload))
	s.mux.Handle("/api/signed-url/", s.authenticated(s.handleSignedURL))
	s.mux.Handle("/api/statistics/overview", s.authenticated(s.handleStatistics))

	// browsers load media by URL, so stored files are served without a token
	s.mux.HandleFunc("/static/", s.handleStatic)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, googleauth.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			writeError(w, http.StatusInternalServerError, "auth not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "library.authorize", security.OutcomeFail, "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.auth.Verify(r.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, googleauth.ErrForbidden):
			s.audit(r, "library.authorize", security.OutcomeFail, "reason", "not_allowed", "email", user.Email)
			writeError(w, http.StatusForbidden, msgAccessDenied)
			return
		default:
			s.audit(r, "library.authorize", security.OutcomeFail, "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "Invalid access token")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok || s.auth == nil {
		writeJSON(w, http.StatusOK, authStatusResponse{Authenticated: false})
		return
	}
	user, err := s.auth.Verify(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, authStatusResponse{Authenticated: false})
		return
	}
	writeJSON(w, http.StatusOK, authStatusResponse{Authenticated: true, User: &user})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request, user googleauth.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, authStatusResponse{Authenticated: true, User: &user})
}

type authStatusResponse struct {
	Authenticated bool             `json:"authenticated"`
	User          *googleauth.User `json:"user,omitempty"`
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trustedProxies)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	alert, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security alert counter unavailable", "event", event, "err", err)
		return
	}
	if alert.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", alert.Count,
			"threshold", alert.Threshold,
			"window", alert.Window.String(),
		)
	}
}

// allowRate consumes one request from limiter for the caller's address.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, name string, limiter *ratelimit.FixedWindowLimiter) bool {
	if limiter == nil {
		return true
	}
	key := name + "|" + util.ClientIP(r, s.trustedProxies)
	decision, err := limiter.Allow(r.Context(), key)
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("rate limiter unavailable", "limiter", name, "err", err)
	}
	if decision.Allowed {
		return true
	}
	s.audit(r, "library."+name, security.OutcomeRateLimited)
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return false
}

func normalizeMaxBytes(value, fallback int64) int64 {
	if value <= 0 {
		return fallback
	}
	return value
}
