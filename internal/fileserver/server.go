// Package fileserver serves the driver's staged files to workers over HTTP.
// It is read only: files are registered in process and fetched by name.
package fileserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nathanielparke/cannoli/internal/store"
)

// Server maps base names to registered host files.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	ledger    store.Store

	mu    sync.RWMutex
	files map[string]string
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithLedger exposes the run ledger read only under /jobs.
func WithLedger(st store.Store) Option {
	return func(s *Server) { s.ledger = st }
}

// New creates a Server with all routes registered.
func New(logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "fileserver"),
		startTime: time.Now(),
		files:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Register publishes path under its base name and returns that name.
// Registering the same path twice is a no-op; a different file with the
// same base name is rejected.
func (s *Server) Register(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", abs)
	}

	name := filepath.Base(abs)
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.files[name]; ok && prev != abs {
		return "", fmt.Errorf("name %q already serves %s", name, prev)
	}
	s.files[name] = abs
	s.logger.Debug("registered file", "name", name, "path", abs)
	return name, nil
}

func (s *Server) lookup(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.files[name]
	return p, ok
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(transferLogMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/files/{name}", s.handleFile)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleListJobs)
		r.Get("/{id}", s.handleGetJob)
	})
}

// Serve listens on addr until ctx is cancelled. The returned URL is the base
// workers should fetch from; it is known once the listener is bound.
func (s *Server) Serve(ctx context.Context, addr string) (string, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}

	done := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	url := "http://" + ln.Addr().String()
	s.logger.Info("serving staged files", "url", url)
	return url, done, nil
}

type healthResponse struct {
	Status string `json:"status"`
	Files  int    `json:"files"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	n := len(s.files)
	s.mu.RUnlock()
	respondJSON(w, http.StatusOK, healthResponse{
		Status: "healthy",
		Files:  n,
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path, ok := s.lookup(name)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("file %q is not registered", name))
		return
	}
	f, err := os.Open(path)
	if err != nil {
		s.logger.Error("open registered file", "path", path, "error", err)
		respondError(w, http.StatusInternalServerError, "cannot open file")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "cannot stat file")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		respondError(w, http.StatusNotFound, "no ledger configured")
		return
	}
	jobs, err := s.ledger.ListJobs(r.Context(), 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, jobs)
}

type jobResponse struct {
	Job        *store.Job               `json:"job"`
	Partitions []*store.PartitionRecord `json:"partitions"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		respondError(w, http.StatusNotFound, "no ledger configured")
		return
	}
	id := chi.URLParam(r, "id")
	job, err := s.ledger.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("job %q not found", id))
		return
	}
	parts, err := s.ledger.ListPartitions(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, jobResponse{Job: job, Partitions: parts})
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
