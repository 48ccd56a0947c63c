package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/pipeline"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/queue"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/version"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Version:  version.Version,
		Time:     time.Now().UTC().Format(time.RFC3339),
		Pipeline: s.pipeline.Info(),
	})
}

// extractHandler runs one uploaded PDF through the pipeline. The body is
// always the ExtractionResult; the status tells input errors (400) and
// queue write failures (500) apart from normal results.
func (s *Server) extractHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	limit := s.maxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		s.handleFormParseError(w, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeErrorResponse(w, "missing_file", "No PDF file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()
	uploadSizeBytes.Observe(float64(header.Size))

	name := uploadName(header.Filename)
	dir, err := os.MkdirTemp("", "seisan-upload-*")
	if err != nil {
		s.writeErrorResponse(w, "internal_error", "Failed to store upload", http.StatusInternalServerError)
		return
	}
	defer func() { _ = os.RemoveAll(dir) }()

	path := filepath.Join(dir, name)
	if err := saveUpload(file, path); err != nil {
		slog.Error("failed to store upload", "req_id", RequestID(r.Context()), "error", err)
		s.writeErrorResponse(w, "internal_error", "Failed to store upload", http.StatusInternalServerError)
		return
	}

	retry, _ := strconv.ParseBool(r.FormValue("retry"))
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res, err := s.pipeline.ProcessWithOptions(ctx, path, pipeline.Options{Name: name, RetryOCR: retry})
	status := http.StatusOK
	label := "ok"
	switch {
	case err == nil:
	case errors.Is(err, document.ErrInput):
		status, label = http.StatusBadRequest, "input_error"
	case errors.Is(err, document.ErrQueue):
		status, label = http.StatusInternalServerError, "queue_error"
	default:
		status, label = http.StatusInternalServerError, "internal_error"
	}
	extractRequestsTotal.WithLabelValues(label).Inc()
	if err != nil {
		slog.Warn("extraction request failed", "req_id", RequestID(r.Context()), "file", name, "error", err)
	}
	if res == nil {
		s.writeErrorResponse(w, label, document.Describe(err), status)
		return
	}
	writeJSON(w, status, res)
}

// queueHandler lists (GET) or removes (DELETE ?file=) review queue entries.
func (s *Server) queueHandler(w http.ResponseWriter, r *http.Request) {
	q := s.pipeline.Queue()
	switch r.Method {
	case http.MethodGet:
		entries, err := q.List()
		if err != nil {
			s.writeErrorResponse(w, "queue_error", err.Error(), http.StatusInternalServerError)
			return
		}
		pipeline.ObserveQueueSize(len(entries))
		if entries == nil {
			entries = []queue.Entry{}
		}
		writeJSON(w, http.StatusOK, QueueResponse{Entries: entries, Count: len(entries)})

	case http.MethodDelete:
		file := r.URL.Query().Get("file")
		if file == "" {
			s.writeErrorResponse(w, "missing_file", "query parameter file is required", http.StatusBadRequest)
			return
		}
		n, err := q.Remove(file)
		if err != nil {
			s.writeErrorResponse(w, "queue_error", err.Error(), http.StatusInternalServerError)
			return
		}
		if entries, err := q.List(); err == nil {
			pipeline.ObserveQueueSize(len(entries))
		}
		if n == 0 {
			s.writeErrorResponse(w, "not_found", "no queue entry for "+file, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, RemoveResponse{File: file, Removed: n})

	default:
		s.methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

// exportHandler downloads the review queue as a spreadsheet.
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	entries, err := s.pipeline.Queue().List()
	if err != nil {
		s.writeErrorResponse(w, "queue_error", err.Error(), http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := queue.ExportXLSX(entries, &buf); err != nil {
		s.writeErrorResponse(w, "export_error", err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="manual_queue.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	s.writeErrorResponse(w, "method_not_allowed", "Method not allowed", http.StatusMethodNotAllowed)
}

func (s *Server) handleFormParseError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(strings.ToLower(err.Error()), "too large") {
		s.writeErrorResponse(w, "too_large", "File too large", http.StatusRequestEntityTooLarge)
		return
	}
	s.writeErrorResponse(w, "bad_form", "Failed to parse form data", http.StatusBadRequest)
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, code, message string, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// uploadName keeps the client's base name, which the filename fallback reads.
func uploadName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "upload.pdf"
	}
	return name
}

func saveUpload(src io.Reader, path string) error {
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600) //nolint:gosec // G304: path is inside our temp dir
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}
