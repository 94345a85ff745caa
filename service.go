// Package docqa answers questions about uploaded PDF documents.
package docqa

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Protocol-Lattice/docqa/pkg/agent"
	"github.com/Protocol-Lattice/docqa/pkg/uploads"
)

// QuestionResult mirrors the /api/ask_question response body.
type QuestionResult struct {
	Success  bool     `json:"success"`
	Response string   `json:"response,omitempty"`
	Error    string   `json:"error,omitempty"`
	Sources  []string `json:"-"`
}

// Service ties ingestion and question answering together.
type Service struct {
	Ingestor *uploads.Ingestor
	Agent    *agent.Agent
	Logger   *slog.Logger

	closers []func() error
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// UploadPDFs replaces the index with the content of files.
func (s *Service) UploadPDFs(ctx context.Context, files []uploads.File) (uploads.Report, error) {
	rep, err := s.Ingestor.Ingest(ctx, files)
	if err != nil {
		s.logger().Error("upload failed", "files", len(files), "error", err)
		return rep, err
	}
	return rep, nil
}

// AskQuestion answers question against the current index. Failures are
// reported in the result rather than as an error.
func (s *Service) AskQuestion(ctx context.Context, question string) QuestionResult {
	if strings.TrimSpace(question) == "" {
		return QuestionResult{Success: false, Error: "question is required"}
	}
	ans, err := s.Agent.Answer(ctx, question)
	if err != nil {
		s.logger().Error("question failed", "error", err)
		return QuestionResult{Success: false, Error: err.Error()}
	}
	s.logger().Info("question answered", "sources", ans.Sources, "retrieved", len(ans.Retrieved))
	return QuestionResult{Success: true, Response: CleanAnswer(ans.Text), Sources: ans.Sources}
}

// Close releases model clients and index connections.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
