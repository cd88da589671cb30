// Package source serves documents, transcripts and extracted field values from a
// directory layout on disk.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JingePHA/eval-ui/internal/extract"
	"github.com/JingePHA/eval-ui/internal/models"
)

// ErrFetch marks a transcript or field value that could not be produced for a document.
var ErrFetch = errors.New("fetch failed")

// ErrInvalidID is returned for ids that would resolve outside the document directory.
var ErrInvalidID = errors.New("invalid document id")

// Layout describes where documents and their derived files live.
type Layout struct {
	DocumentDir      string
	TranscriptDir    string
	FieldsDir        string
	Extension        string
	TranscriptSuffix string
	FieldsSuffix     string
}

// Source implements the transcript and field services over a Layout.
type Source struct {
	layout    Layout
	extractor *extract.Extractor
	logger    *zap.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// New creates a Source. Empty transcript or fields directories default to the document directory.
func New(layout Layout, opts ...Option) *Source {
	if layout.TranscriptDir == "" {
		layout.TranscriptDir = layout.DocumentDir
	}
	if layout.FieldsDir == "" {
		layout.FieldsDir = layout.DocumentDir
	}
	s := &Source{layout: layout, extractor: extract.NewExtractor()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Layout returns the effective layout.
func (s *Source) Layout() Layout {
	return s.layout
}

// Matches reports whether name carries the document extension. The match ignores case.
func (s *Source) Matches(name string) bool {
	if s.layout.Extension == "" {
		return true
	}
	return strings.EqualFold(filepath.Ext(name), s.layout.Extension)
}

// List returns the ids of all documents in the document directory, sorted by name.
func (s *Source) List(ctx context.Context) ([]models.DocumentID, error) {
	entries, err := os.ReadDir(s.layout.DocumentDir)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	var ids []models.DocumentID
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !s.Matches(e.Name()) {
			continue
		}
		ids = append(ids, models.DocumentID(e.Name()))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// DocumentPath returns the path of the document file for id.
func (s *Source) DocumentPath(id models.DocumentID) (string, error) {
	name := string(id)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, name)
	}
	return filepath.Join(s.layout.DocumentDir, name), nil
}

func stem(id models.DocumentID) string {
	name := string(id)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Transcript returns the OCR transcript of id. When no transcript file exists, the text is
// extracted from the document itself.
func (s *Source) Transcript(ctx context.Context, id models.DocumentID) (string, error) {
	if _, err := s.DocumentPath(id); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetch, err)
	}
	path := filepath.Join(s.layout.TranscriptDir, stem(id)+s.layout.TranscriptSuffix)
	data, err := os.ReadFile(path)
	if err == nil {
		return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: transcript for %s: %w", ErrFetch, id, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	docPath, _ := s.DocumentPath(id)
	if s.logger != nil {
		s.logger.Debug("No transcript file, extracting from document",
			zap.String("document", string(id)),
			zap.String("path", docPath))
	}
	text, err := s.extractor.Extract(docPath)
	if err != nil {
		return "", fmt.Errorf("%w: transcript for %s: %w", ErrFetch, id, err)
	}
	return text, nil
}

// Fields returns the extracted field values of id, keyed by indicator name.
func (s *Source) Fields(ctx context.Context, id models.DocumentID) (map[string]models.FieldValue, error) {
	if _, err := s.DocumentPath(id); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.layout.FieldsDir, stem(id)+s.layout.FieldsSuffix)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: fields for %s: %w", ErrFetch, id, err)
	}
	var fields map[string]models.FieldValue
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: decode fields for %s: %w", ErrFetch, id, err)
	}
	return fields, nil
}
