// Package api serves the generated manifest, error report, audit summary and
// artifacts of an output directory over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/audit"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/logging"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/manifest"
	mw "github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/middleware"
	"github.com/arcade-cabinet/dragons-labyrinth-sub005/internal/validation"
)

// Options configures the server
type Options struct {
	OutputDir      string
	AuditDir       string
	JWTSecret      string
	TrustedProxies []netip.Prefix
	Logger         *zap.Logger
}

// Server handles HTTP requests
type Server struct {
	router      chi.Router
	outputDir   string
	auditDir    string
	secret      []byte
	logger      *zap.Logger
	rateLimiter *mw.RateLimiter
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		outputDir:   opts.OutputDir,
		auditDir:    opts.AuditDir,
		secret:      []byte(opts.JWTSecret),
		logger:      logging.OrNop(opts.Logger),
		rateLimiter: mw.NewRateLimiter(mw.DefaultRate, mw.DefaultRate).WithTrustedProxies(opts.TrustedProxies),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.SetHeader("Content-Type", "application/json"))
	s.router.Use(s.rateLimiter.Middleware)
	s.router.Use(mw.SecurityHeadersMiddleware)
	s.router.Use(mw.MaxBodySizeMiddleware(64 * 1024))

	s.router.Get("/healthz", s.health)

	s.router.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware(s.secret))
		r.Get("/api/manifest", s.getManifest)
		r.Get("/api/levels/{level}", s.getLevel)
		r.Get("/api/errors", s.getErrors)
		r.Get("/api/audit", s.getAudit)
		r.Get("/api/artifacts/{domain}/{id}", s.getArtifact)
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Response wraps API responses
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response (sanitized)
func writeError(w http.ResponseWriter, status int, message string) {
	if status >= 500 {
		message = "Internal server error"
	}
	writeJSON(w, status, Response{
		Success: false,
		Error:   message,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: "ok"})
}

// loadManifest reads the manifest, writing the error response on failure
func (s *Server) loadManifest(w http.ResponseWriter) (*manifest.Manifest, bool) {
	m, err := manifest.Load(filepath.Join(s.outputDir, manifest.FileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "Manifest not found")
		} else {
			s.logger.Error("Manifest unreadable", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to read manifest")
		}
		return nil, false
	}
	return m, true
}

// getManifest returns the whole manifest
func (s *Server) getManifest(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadManifest(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: m})
}

// getLevel returns the manifest entry of one dread level
func (s *Server) getLevel(w http.ResponseWriter, r *http.Request) {
	level, err := validation.ParseDreadLevel(chi.URLParam(r, "level"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid dread level")
		return
	}

	m, ok := s.loadManifest(w)
	if !ok {
		return
	}
	entry, ok := m.Level(level)
	if !ok {
		writeError(w, http.StatusNotFound, "Dread level not generated")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: entry})
}

// getErrors returns the grouped failure report
func (s *Server) getErrors(w http.ResponseWriter, r *http.Request) {
	report, err := manifest.LoadErrors(filepath.Join(s.outputDir, manifest.ErrorsFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "Error report not found")
			return
		}
		s.logger.Error("Error report unreadable", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read error report")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: report})
}

// getAudit returns per-category aggregates of the current audit CSVs
func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditDir == "" {
		writeError(w, http.StatusNotFound, "Audit reports disabled")
		return
	}
	report, err := audit.Summarize(s.auditDir)
	if err != nil {
		s.logger.Error("Audit summary failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to summarize audit")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: report})
}

// getArtifact returns one generated JSON artifact as stored
func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	id := chi.URLParam(r, "id")

	if err := validation.ValidateDomain(domain); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid domain")
		return
	}
	if err := validation.ValidateAssetID(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid asset ID")
		return
	}

	data, err := os.ReadFile(filepath.Join(s.outputDir, domain, id+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, http.StatusNotFound, "Artifact not found")
			return
		}
		s.logger.Error("Artifact unreadable", zap.String("domain", domain), zap.String("asset_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read artifact")
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: json.RawMessage(data)})
}
