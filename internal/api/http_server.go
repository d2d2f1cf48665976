package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"luybot/internal/config"
	"luybot/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// HTTPServer exposes read-only course reporting for internal dashboards.
type HTTPServer struct {
	cfg    config.APIConfig
	repo   domain.Repository
	course config.CourseConfig
	server *http.Server
	auth   *HTTPAuth
	logger zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, course config.CourseConfig, repo domain.Repository, logger *zerolog.Logger) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "api").Logger()
	}

	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, course: course, repo: repo, logger: base}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/stats/overview", srv.handleStatsOverview)
	mux.HandleFunc("/api/v1/stats/days", srv.handleStatsDays)
	mux.HandleFunc("/api/v1/stats/stuck", srv.handleStatsStuck)
	mux.HandleFunc("/api/v1/users/", srv.handleUserProgress)

	// Health check stays outside auth so the load balancer can reach it.
	root := http.NewServeMux()
	root.HandleFunc("/healthz", srv.handleHealth)
	root.Handle("/", srv.auth.Wrap(mux))

	handler := srv.loggingMiddleware(root)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the full middleware chain, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleStatsOverview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	users, err := s.repo.GetAllUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load users")
		return
	}

	completed, err := s.repo.CountCompletedPrograms(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count completed programs")
		return
	}

	paid := 0
	for _, u := range users {
		if u.IsPaid {
			paid++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_users":        len(users),
		"paid_users":         paid,
		"completed_programs": completed,
		"course_days":        s.course.MaxDay,
	})
}

func (s *HTTPServer) handleStatsDays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	byDay, err := s.repo.CountUsersByDay(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count users by day")
		return
	}

	completions, err := s.repo.CompletionCountsByDay(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count completions")
		return
	}

	type dayStat struct {
		Day         int `json:"day"`
		UsersOnDay  int `json:"users_on_day"`
		Completions int `json:"completions"`
	}

	seen := make(map[int]bool)
	var days []int
	for day := range byDay {
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	for day := range completions {
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	sort.Ints(days)

	results := make([]dayStat, 0, len(days))
	for _, day := range days {
		results = append(results, dayStat{Day: day, UsersOnDay: byDay[day], Completions: completions[day]})
	}

	writeJSON(w, http.StatusOK, map[string]any{"days": results})
}

func (s *HTTPServer) handleStatsStuck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	staleDays := s.course.StuckAfterDays
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		staleDays = parsed
	}

	stuck, err := s.repo.GetStuckUsers(r.Context(), staleDays)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stuck users")
		return
	}

	type stuckEntry struct {
		TelegramID int64  `json:"telegram_id"`
		Username   string `json:"username,omitempty"`
		CurrentDay int    `json:"current_day"`
		LastActive string `json:"last_active"`
	}

	results := make([]stuckEntry, 0, len(stuck))
	for _, s := range stuck {
		results = append(results, stuckEntry{
			TelegramID: s.User.TelegramID,
			Username:   s.User.Username,
			CurrentDay: s.CurrentDay,
			LastActive: s.LastActive.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"stale_days": staleDays, "users": results})
}

func (s *HTTPServer) handleUserProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/users/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "progress" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	telegramID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	progress, err := s.repo.GetProgress(r.Context(), telegramID)
	if err != nil {
		writeError(w, http.StatusNotFound, "progress not found")
		return
	}

	completedAt := ""
	if !progress.ProgramCompletedAt.IsZero() {
		completedAt = progress.ProgramCompletedAt.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"telegram_id":       progress.UserID,
		"current_day":       progress.CurrentDay,
		"completed_days":    progress.CompletedDays(),
		"program_completed": progress.ProgramCompleted,
		"completed_at":      completedAt,
	})
}

// HTTPAuth provides API-key auth and per-key rate limiting.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKeyHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = "x-api-key"
	}

	apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	if apiKey == "" {
		return fmt.Errorf("missing api key header")
	}

	// Сравниваем с каждым ключом, чтобы не светить тайминги
	for key := range a.clients {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return nil
		}
	}
	return fmt.Errorf("invalid api key")
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	key := a.clientKey(r)
	lim := a.getLimiter(key)
	if !lim.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	apiKeyHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = "x-api-key"
	}

	if apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
