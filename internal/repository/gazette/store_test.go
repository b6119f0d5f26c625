package gazette

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestStore_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gazettes.json")
	writeFile(t, path, `[
		{"id": "g1", "subject": "Capital adequacy", "url": "https://egazette.gov.in/1", "text": "Banks must hold capital."},
		{"id": 42, "subject": "Numeric id", "text": "x"},
		"not an object",
		{"id": " g3 ", "subject": "Scanned", "pdf_path": "scans/g3.pdf"}
	]`)

	s := New([]string{filepath.Join(dir, "missing.json"), path}, zap.NewNop())
	var extracted []string
	s.extract = func(p string) (string, error) {
		extracted = append(extracted, p)
		return "extracted text", nil
	}

	require.NoError(t, s.Load())
	assert.Equal(t, path, s.Path())

	records := s.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "g1", records[0].ID)
	assert.Equal(t, "42", records[1].ID)
	assert.Equal(t, "g3", records[2].ID)
	assert.Equal(t, "extracted text", records[2].Text)
	assert.Equal(t, []string{filepath.Join(dir, "scans", "g3.pdf")}, extracted)

	got, ok := s.ByID(" g1")
	require.True(t, ok)
	assert.Equal(t, "Capital adequacy", got.Subject)

	_, ok = s.ByID("nope")
	assert.False(t, ok)
}

func TestStore_RecordsIsACopy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.json")
	writeFile(t, path, `[{"id": "g1", "subject": "a", "text": "b"}]`)

	s := New([]string{path}, nil)
	require.NoError(t, s.Load())

	r := s.Records()
	r[0].ID = "changed"
	assert.Equal(t, "g1", s.Records()[0].ID)
}

func TestStore_PDFFailureKeepsRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.json")
	writeFile(t, path, `[{"id": "g1", "subject": "a", "pdf_path": "/abs/g1.pdf"}]`)

	core, logs := observer.New(zap.WarnLevel)
	s := New([]string{path}, zap.New(core))
	s.extract = func(p string) (string, error) {
		assert.Equal(t, "/abs/g1.pdf", p)
		return "", errors.New("broken pdf")
	}

	require.NoError(t, s.Load())
	require.Len(t, s.Records(), 1)
	assert.Empty(t, s.Records()[0].Text)
	assert.Equal(t, 1, logs.FilterMessage("gazette_pdf_extract_failed").Len())
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	s := New([]string{filepath.Join(t.TempDir(), "none.json"), ""}, nil)
	require.NoError(t, s.Load())
	assert.Empty(t, s.Records())
	assert.Empty(t, s.Path())

	err := s.Watch(context.Background())
	assert.Error(t, err)
}

func TestStore_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.json")
	writeFile(t, path, `{"id": "g1"}`)

	s := New([]string{path}, nil)
	assert.Error(t, s.Load())
}

func TestStore_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "g.json")
	writeFile(t, path, `[{"id": "g1", "subject": "a", "text": "b"}]`)

	s := New([]string{path}, nil)
	require.NoError(t, s.Load())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, `[{"id": "g1", "subject": "a", "text": "b"}, {"id": "g2", "subject": "c", "text": "d"}]`)

	assert.Eventually(t, func() bool { return len(s.Records()) == 2 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
