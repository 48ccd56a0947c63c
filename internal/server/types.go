// Package server exposes the extraction pipeline and the review queue over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/pipeline"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/queue"
)

// pipelineInterface defines the methods needed by the server from a pipeline.
type pipelineInterface interface {
	ProcessWithOptions(ctx context.Context, path string, opts pipeline.Options) (*document.ExtractionResult, error)
	Queue() *queue.Queue
	Info() map[string]any
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline    pipelineInterface
	corsOrigin  string
	maxUploadMB int64
	timeout     time.Duration
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status   string         `json:"status"`
	Version  string         `json:"version,omitempty"`
	Time     string         `json:"time"`
	Pipeline map[string]any `json:"pipeline,omitempty"`
}

// QueueResponse lists the review queue.
type QueueResponse struct {
	Entries []queue.Entry `json:"entries"`
	Count   int           `json:"count"`
}

// RemoveResponse reports how many queue entries were dropped.
type RemoveResponse struct {
	File    string `json:"file"`
	Removed int    `json:"removed"`
}

// ErrorResponse is the body of every non-extraction error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewServer wraps an already built pipeline. The server owns it from here on
// and closes it in Close.
func NewServer(p pipelineInterface, config Config) *Server {
	maxUpload := config.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 50
	}
	timeout := time.Duration(config.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	origin := config.CORSOrigin
	if origin == "" {
		origin = "*"
	}
	return &Server{
		pipeline:    p,
		corsOrigin:  origin,
		maxUploadMB: maxUpload,
		timeout:     timeout,
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.wrap("/health", s.healthHandler))
	mux.HandleFunc("/v1/extract", s.wrap("/v1/extract", s.extractHandler))
	mux.HandleFunc("/v1/queue", s.wrap("/v1/queue", s.queueHandler))
	mux.HandleFunc("/v1/queue/export.xlsx", s.wrap("/v1/queue/export.xlsx", s.exportHandler))
	mux.Handle("/metrics", metricsHandler())
}

// Handler returns a mux with all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}
