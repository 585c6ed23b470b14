package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"notespresence/internal/history"
	"notespresence/internal/metrics"
	"notespresence/internal/models"
	"notespresence/internal/profiles"
	"notespresence/internal/storage"
)

const (
	defaultWindowHours = 24
	maxWindowHours     = 30 * 24
)

// Server wraps HTTP serving of the profile API and the live feed.
type Server struct {
	httpServer   *http.Server
	service      *profiles.Service
	logger       *zap.SugaredLogger
	pushInterval time.Duration
}

// New creates a configured HTTP server for the profile service.
func New(addr string, service *profiles.Service, pushInterval time.Duration, logger *zap.SugaredLogger) *Server {
	if pushInterval <= 0 {
		pushInterval = 15 * time.Second
	}
	s := &Server{
		service:      service,
		logger:       logger,
		pushInterval: pushInterval,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/users", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/users", s.handleUsers).Methods(http.MethodGet)
	api.HandleFunc("/profile", s.handleProfile).Methods(http.MethodGet)
	api.HandleFunc("/presence", s.handlePresence).Methods(http.MethodPatch, http.MethodPut)
	api.HandleFunc("/presence/uptime", s.handleUptime).Methods(http.MethodGet)
	api.HandleFunc("/presence/timeline", s.handleTimeline).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	return r
}

type registerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	profile, err := s.service.Register(req.Name, req.Email)
	if errors.Is(err, profiles.ErrInvalidProfile) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Errorw("register profile", "error", err)
		writeError(w, http.StatusInternalServerError, "could not register profile")
		return
	}
	writeJSON(w, http.StatusCreated, profile)
}

func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Profiles())
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.service.Profile(bearerToken(r))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no profile for token")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile.Redacted())
}

type presenceRequest struct {
	IsOnline   *bool     `json:"is_online"`
	ObservedAt time.Time `json:"observed_at"`
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	var req presenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsOnline == nil {
		writeError(w, http.StatusBadRequest, "is_online is required")
		return
	}
	_, err := s.service.ReportPresence(token, *req.IsOnline, req.ObservedAt)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no profile for token")
		return
	}
	if err != nil {
		s.logger.Errorw("apply presence", "error", err)
		writeError(w, http.StatusInternalServerError, "could not update presence")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	cutoff := time.Now().UTC().Add(-parseHours(r) * time.Hour)
	writeJSON(w, http.StatusOK, metrics.ComputeUserUptime(s.service.Profiles(), s.service.History(cutoff)))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	end := time.Now().UTC()
	start := end.Add(-parseHours(r) * time.Hour)
	points := parseInt(r, "points", history.DefaultTimelinePoints, 500)

	// Samples before the window seed the carried-over state.
	lookback := start.Add(-2 * time.Hour)
	all := s.service.Profiles()
	uid := strings.TrimSpace(r.URL.Query().Get("uid"))
	var samples []models.PresenceSample
	if uid != "" {
		samples = s.service.HistoryFor(uid, lookback)
		filtered := all[:0]
		for _, p := range all {
			if p.UID == uid {
				filtered = append(filtered, p)
			}
		}
		all = filtered
	} else {
		samples = s.service.History(lookback)
	}
	writeJSON(w, http.StatusOK, history.BuildUserTimelines(all, samples, start, end, points))
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func parseHours(r *http.Request) time.Duration {
	return time.Duration(parseInt(r, "hours", defaultWindowHours, maxWindowHours))
}

func parseInt(r *http.Request, key string, fallback, limit int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > limit {
		return limit
	}
	return value
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
