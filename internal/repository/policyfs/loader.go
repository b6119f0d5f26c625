// Package policyfs reads policy documents from the on-disk policy tree:
//
//	{root}/{AUTHORITY}/{policy_dir}/metadata.json
//	{root}/{AUTHORITY}/{policy_dir}/{version}.txt
//
// Loose .txt files without metadata are picked up as well.
package policyfs

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kira-labs/kira/internal/domain"
)

type metadataFile struct {
	LastProcessedVersion string `json:"last_processed_version"`
	LastProcessedDate    string `json:"last_processed_date"`
	ProcessingStatus     any    `json:"processing_status"`
}

// Loader walks a policy root directory.
type Loader struct {
	root   string
	logger *zap.Logger
	title  cases.Caser
}

// New creates a loader rooted at root.
func New(root string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{root: root, logger: logger, title: cases.Title(language.Und)}
}

// Root returns the directory the loader reads.
func (l *Loader) Root() string { return l.root }

// Exists reports whether the root directory is present.
func (l *Loader) Exists() bool {
	info, err := os.Stat(l.root)
	return err == nil && info.IsDir()
}

// Load returns every readable policy document in a stable order: metadata-described
// policies first (sorted by metadata path), then loose text files (sorted by path).
// A missing root yields no documents.
func (l *Loader) Load() ([]domain.PolicyDocument, error) {
	if !l.Exists() {
		return nil, nil
	}

	var metaPaths, txtPaths []string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch {
		case d.Name() == "metadata.json":
			metaPaths = append(metaPaths, path)
		case strings.HasSuffix(d.Name(), ".txt"):
			txtPaths = append(txtPaths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(metaPaths)
	slices.Sort(txtPaths)

	consumed := make(map[string]bool)
	var docs []domain.PolicyDocument

	for _, metaPath := range metaPaths {
		meta := l.readMetadata(metaPath)
		dir := filepath.Dir(metaPath)

		// Every version in a described directory belongs to that policy.
		local, _ := filepath.Glob(filepath.Join(dir, "*.txt"))
		slices.Sort(local)
		for _, p := range local {
			consumed[p] = true
		}

		selected := ""
		if v := strings.TrimSpace(meta.LastProcessedVersion); v != "" {
			candidate := filepath.Join(dir, v+".txt")
			if fileExists(candidate) {
				selected = candidate
			}
		}
		if selected == "" && len(local) > 0 {
			selected = local[len(local)-1]
		}
		if selected == "" {
			continue
		}

		content := l.readText(selected)
		if content == "" {
			continue
		}

		authority := l.authorityOf(selected)
		dirName := filepath.Base(dir)
		stem := strings.TrimSuffix(filepath.Base(selected), ".txt")
		name := l.titleize(dirName)
		if name == "" {
			name = stem
		}
		docs = append(docs, domain.PolicyDocument{
			ID:            strings.ToLower(authority) + "-" + strings.ToLower(dirName),
			Name:          name,
			Authority:     authority,
			Version:       stem,
			EffectiveDate: strings.Split(meta.LastProcessedDate, "T")[0],
			Status:        statusOf(meta.ProcessingStatus),
			Content:       content,
		})
	}

	for _, txtPath := range txtPaths {
		if consumed[txtPath] {
			continue
		}
		content := l.readText(txtPath)
		if content == "" {
			continue
		}
		authority := l.authorityOf(txtPath)
		stem := strings.TrimSuffix(filepath.Base(txtPath), ".txt")
		docs = append(docs, domain.PolicyDocument{
			ID:        strings.ToLower(authority) + "-" + strings.ToLower(stem),
			Name:      l.titleize(stem),
			Authority: authority,
			Version:   stem,
			Status:    domain.StatusProcessed,
			Content:   content,
		})
	}

	return docs, nil
}

// authorityOf is the first path segment below the root, or Unknown for files at the root.
func (l *Loader) authorityOf(path string) string {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		return domain.UnknownAuthority
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) > 1 {
		return parts[0]
	}
	return domain.UnknownAuthority
}

func (l *Loader) titleize(s string) string {
	return l.title.String(strings.TrimSpace(strings.ReplaceAll(s, "_", " ")))
}

func (l *Loader) readMetadata(path string) metadataFile {
	var meta metadataFile
	data, err := os.ReadFile(path)
	if err == nil {
		err = json.Unmarshal(data, &meta)
	}
	if err != nil {
		l.logger.Warn("unable_to_read_metadata_file", zap.String("path", path), zap.Error(err))
		return metadataFile{}
	}
	return meta
}

func (l *Loader) readText(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Warn("unable_to_read_policy_text", zap.String("path", path), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(string(data))
}

func statusOf(v any) string {
	s, ok := v.(string)
	if !ok {
		return domain.StatusProcessed
	}
	return domain.NormalizeStatus(s)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
