package loader

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kailas-cloud/kbchat/internal/domain/document"
)

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler-utils")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the host.
type ExecRunner struct{}

// Run executes name with args.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}
	return exec.CommandContext(ctx, name, args...).Output()
}

// PDFLoader emits one document per page using pdftotext.
type PDFLoader struct {
	runner CommandRunner
}

// NewPDFLoader creates a PDFLoader.
func NewPDFLoader(runner CommandRunner) *PDFLoader {
	return &PDFLoader{runner: runner}
}

// Load runs pdftotext and splits its output on form feeds; blank pages are skipped.
func (l *PDFLoader) Load(ctx context.Context, path string) ([]document.Document, error) {
	if _, err := readFile(path); err != nil {
		return nil, err
	}
	out, err := l.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed for %s: %w", path, err)
	}

	var docs []document.Document
	for i, page := range strings.Split(string(out), "\f") {
		text := strings.TrimSpace(page)
		if text == "" {
			continue
		}
		docs = append(docs, document.Document{
			PageContent: text,
			Metadata: document.Metadata{
				Source: path,
				Loc:    document.Location{PageNumber: i + 1},
			},
		})
	}
	return docs, nil
}
