// Package gazette serves the gazette notification dataset from a JSON file,
// reloading it when the file changes.
package gazette

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
)

// Store holds the current gazette snapshot. Safe for concurrent use.
type Store struct {
	candidates []string
	extract    func(path string) (string, error)
	logger     *zap.Logger

	mu      sync.RWMutex
	path    string
	records []domain.GazetteRecord
}

// New creates a store reading the first existing file among candidates.
func New(candidates []string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{candidates: candidates, extract: ExtractPDFText, logger: logger}
}

// Path returns the file the current snapshot was read from, or "" when none was found.
func (s *Store) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Load reads the dataset and swaps the snapshot. A missing file yields an empty snapshot.
func (s *Store) Load() error {
	path := s.resolve()
	if path == "" {
		s.swap("", nil)
		s.logger.Warn("gazette_file_not_found", zap.Strings("candidates", s.candidates))
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read gazettes %s: %w", path, err)
	}
	records, err := s.decode(filepath.Dir(path), data)
	if err != nil {
		return fmt.Errorf("decode gazettes %s: %w", path, err)
	}

	s.swap(path, records)
	s.logger.Info("gazettes_loaded", zap.String("path", path), zap.Int("records", len(records)))
	return nil
}

// Records returns a copy of the current snapshot in file order.
func (s *Store) Records() []domain.GazetteRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.GazetteRecord, len(s.records))
	copy(out, s.records)
	return out
}

// ByID finds a record by id, ignoring surrounding whitespace.
func (s *Store) ByID(id string) (domain.GazetteRecord, bool) {
	id = strings.TrimSpace(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, true
		}
	}
	return domain.GazetteRecord{}, false
}

// Watch reloads the snapshot whenever the dataset file is written or replaced.
// It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	path := s.Path()
	if path == "" {
		return fmt.Errorf("watch gazettes: no dataset file among %v", s.candidates)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch gazettes: %w", err)
	}
	defer w.Close()

	// Watch the directory: editors and deploy tools replace files by rename.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch gazettes %s: %w", filepath.Dir(path), err)
	}
	name := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.Load(); err != nil {
				s.logger.Warn("gazette_reload_failed", zap.Error(err))
				continue
			}
			s.logger.Info("gazette_reloaded", zap.String("op", ev.Op.String()))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("gazette_watch_error", zap.Error(err))
		}
	}
}

func (s *Store) resolve() string {
	for _, c := range s.candidates {
		if c == "" {
			continue
		}
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

func (s *Store) swap(path string, records []domain.GazetteRecord) {
	s.mu.Lock()
	s.path = path
	s.records = records
	s.mu.Unlock()
}

// decode reads a JSON array of objects. Non-object entries are skipped and
// scalar fields are stringified. Records carrying only a pdf_path get their text extracted.
func (s *Store) decode(baseDir string, data []byte) ([]domain.GazetteRecord, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}

	records := make([]domain.GazetteRecord, 0, len(items))
	for _, raw := range items {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil || m == nil {
			continue
		}
		rec := domain.GazetteRecord{
			ID:      strings.TrimSpace(stringify(m["id"])),
			Subject: stringify(m["subject"]),
			URL:     stringify(m["url"]),
			Text:    stringify(m["text"]),
			PDFPath: stringify(m["pdf_path"]),
		}
		if strings.TrimSpace(rec.Text) == "" && rec.PDFPath != "" {
			rec.Text = s.pdfText(baseDir, rec)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Store) pdfText(baseDir string, rec domain.GazetteRecord) string {
	path := rec.PDFPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	text, err := s.extract(path)
	if err != nil {
		s.logger.Warn("gazette_pdf_extract_failed", zap.String("gazette_id", rec.ID), zap.String("path", path), zap.Error(err))
		return ""
	}
	return text
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
