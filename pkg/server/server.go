// Package server exposes the upload and question endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Protocol-Lattice/docqa"
	"github.com/Protocol-Lattice/docqa/pkg/uploads"
)

const (
	uploadSuccessMessage = "PDFs processed successfully"
	internalErrorMessage = "Internal Server Error"
	multipartMemory      = 32 << 20
)

// Backend is the service behind the HTTP API.
type Backend interface {
	UploadPDFs(ctx context.Context, files []uploads.File) (uploads.Report, error)
	AskQuestion(ctx context.Context, question string) docqa.QuestionResult
}

// Options configure a Server.
type Options struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	Logger          *slog.Logger
}

// Server is the HTTP server for the docqa API.
type Server struct {
	backend Backend
	opts    Options
	logger  *slog.Logger
	handler http.Handler
}

func New(backend Backend, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":3000"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 128 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{backend: backend, opts: opts, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/upload_files", s.handleUpload)
	mux.HandleFunc("POST /api/ask_question", s.handleAsk)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	s.handler = requestIDMiddleware(
		loggingMiddleware(logger,
			recoveryMiddleware(logger,
				timeoutMiddleware(opts.RequestTimeout, mux))))
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("docqa server starting", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	s.logger.Info("docqa server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.fail(w, r, "parse upload", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		s.fail(w, r, "parse upload", errors.New("no files in field \"files\""))
		return
	}
	files := make([]uploads.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			s.fail(w, r, "open upload", err)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.fail(w, r, "read upload", err)
			return
		}
		files = append(files, uploads.File{Name: fh.Filename, Data: data})
	}

	if _, err := s.backend.UploadPDFs(r.Context(), files); err != nil {
		s.fail(w, r, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": uploadSuccessMessage})
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, "decode question", err)
		return
	}
	writeJSON(w, http.StatusOK, s.backend.AskQuestion(r.Context(), req.Question))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail logs err and answers with the generic 500 body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error("request failed", "op", op, "request_id", RequestID(r.Context()), "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": internalErrorMessage})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
