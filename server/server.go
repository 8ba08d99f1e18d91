// Package server exposes the tracker's jobs and stored records over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"rfc-tracker/discover"
	"rfc-tracker/pkg/rfc"
	"rfc-tracker/reconcile"
)

const (
	maxYears     = 25
	triggerEvery = 30 * time.Second
)

// Tracker interface for running jobs.
type Tracker interface {
	Analyze(ctx context.Context) (discover.Summary, error)
	History(ctx context.Context, page string, year, years int) ([]*rfc.Run, error)
}

// Store interface for reading stored results.
type Store interface {
	Records(ctx context.Context, identifier string) ([]*rfc.Record, error)
	AllRecords(ctx context.Context) ([]*rfc.Record, error)
	Runs(ctx context.Context) ([]*rfc.Run, error)
}

// Server handles HTTP requests.
type Server struct {
	tracker     Tracker
	store       Store
	logger      *slog.Logger
	limiter     *rateLimiter
	defaultPage string
	busy        sync.Mutex // Held while a job runs
}

// Config holds server configuration.
type Config struct {
	Tracker     Tracker
	Store       Store
	Logger      *slog.Logger
	DefaultPage string // List page scanned when /historyz names none
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		tracker:     cfg.Tracker,
		store:       cfg.Store,
		logger:      cfg.Logger,
		defaultPage: cfg.DefaultPage,
		limiter:     newRateLimiter(triggerEvery, 2),
	}
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/analyzez", s.handleAnalyze)
	mux.HandleFunc("/historyz", s.handleHistory)
	mux.HandleFunc("/records", s.handleRecords)
	mux.HandleFunc("/runs", s.handleRuns)
	return mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Minute, // History scans run inside the request
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", port)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !s.allowTrigger(w, r) {
		return
	}
	if !s.busy.TryLock() {
		http.Error(w, "A job is already running", http.StatusConflict)
		return
	}
	defer s.busy.Unlock()

	s.logger.Info("Analyze endpoint triggered")
	summary, err := s.tracker.Analyze(r.Context())
	if err != nil {
		s.logger.Error("Analyze failed", "error", err)
		http.Error(w, "Analyze failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "summary": summary})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.allowTrigger(w, r) {
		return
	}

	q := r.URL.Query()
	page := q.Get("page")
	if page == "" {
		page = s.defaultPage
	}
	if page == "" {
		http.Error(w, "Missing page", http.StatusBadRequest)
		return
	}
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil || year < 2001 {
		http.Error(w, "Invalid or missing year", http.StatusBadRequest)
		return
	}
	years := 1
	if v := q.Get("years"); v != "" {
		years, err = strconv.Atoi(v)
		if err != nil || years < 1 || years > maxYears {
			http.Error(w, fmt.Sprintf("years must be between 1 and %d", maxYears), http.StatusBadRequest)
			return
		}
	}

	if !s.busy.TryLock() {
		http.Error(w, "A job is already running", http.StatusConflict)
		return
	}
	defer s.busy.Unlock()

	s.logger.Info("History endpoint triggered", "page", page, "year", year, "years", years)
	runs, err := s.tracker.History(r.Context(), page, year, years)
	if err != nil {
		s.logger.Error("History scan failed", "page", page, "year", year, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "failed", "error": err.Error(), "runs": runs})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "runs": runs})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if id := r.URL.Query().Get("id"); id != "" {
		records, err := s.store.Records(r.Context(), id)
		if err != nil {
			s.logger.Error("Failed to load records", "identifier", id, "error", err)
			http.Error(w, "Failed to load records", http.StatusInternalServerError)
			return
		}
		if len(records) == 0 {
			http.Error(w, "No records for "+id, http.StatusNotFound)
			return
		}
		s.writeJSON(w, http.StatusOK, reconcile.Reconcile(records))
		return
	}

	records, err := s.store.AllRecords(r.Context())
	if err != nil {
		s.logger.Error("Failed to load records", "error", err)
		http.Error(w, "Failed to load records", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, reconcile.ByIdentifier(records))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	runs, err := s.store.Runs(r.Context())
	if err != nil {
		s.logger.Error("Failed to load runs", "error", err)
		http.Error(w, "Failed to load runs", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// allowTrigger checks the method and per-client rate limit of job endpoints.
func (s *Server) allowTrigger(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	ip := clientIP(r)
	if !s.limiter.allow(ip) {
		s.logger.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
		http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
