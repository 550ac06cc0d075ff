package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkivsog/bogsog/pkg/chunker"
	"github.com/arkivsog/bogsog/pkg/embedding"
	"github.com/arkivsog/bogsog/pkg/pdf"
	"github.com/arkivsog/bogsog/pkg/storage"
)

// fakeStore records saved books in memory.
type fakeStore struct {
	mu      sync.Mutex
	saved   map[string]*storage.BookWithChunks
	indexed map[string]bool
	nextID  uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		saved:   make(map[string]*storage.BookWithChunks),
		indexed: make(map[string]bool),
	}
}

func (s *fakeStore) BookHasEmbeddingsForProvider(ctx context.Context, url, table string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexed[url+"|"+table], nil
}

func (s *fakeStore) SaveBookWithChunks(ctx context.Context, bw *storage.BookWithChunks, table string) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[bw.Book.PDFURL] = bw
	s.indexed[bw.Book.PDFURL+"|"+table] = true
	s.nextID++
	return s.nextID, nil
}

func (s *fakeStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// fakeExtractor skips real PDF parsing and returns a fixed document.
type fakeExtractor struct{}

func (fakeExtractor) Extract(data []byte) (*pdf.Document, error) {
	return &pdf.Document{
		Title:  "T",
		Author: "A",
		Pages:  3,
		PageText: map[int]string{
			1: "cover page.",
			2: "page two text.",
			3: "page three text.",
		},
	}, nil
}

func newTestOrchestrator(t *testing.T, store *fakeStore, opts ...Option) *Orchestrator {
	t.Helper()

	strategy, err := chunker.New(chunker.StrategySentenceSplitter)
	require.NoError(t, err)

	base := []Option{
		WithStore(store),
		WithProvider(embedding.NewDummy()),
		WithStrategy(strategy),
		WithExtractor(fakeExtractor{}),
		WithLogger(hclog.NewNullLogger()),
		WithMaxWorkers(3),
		WithMaxTokens(50),
	}
	o, err := NewOrchestrator(append(base, opts...)...)
	require.NoError(t, err)
	return o
}

func TestNewOrchestratorRequiresDependencies(t *testing.T) {
	_, err := NewOrchestrator()
	require.Error(t, err)

	_, err = NewOrchestrator(WithStore(newFakeStore()))
	require.Error(t, err)
}

func TestRunCountsPartialFailures(t *testing.T) {
	// 6 URLs succeed, 4 fail with HTTP 500.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/bad") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("%PDF-fake"))
	}))
	defer srv.Close()

	var urls []string
	for i := 0; i < 6; i++ {
		urls = append(urls, fmt.Sprintf("%s/ok/%d.pdf", srv.URL, i))
	}
	for i := 0; i < 4; i++ {
		urls = append(urls, fmt.Sprintf("%s/bad/%d.pdf", srv.URL, i))
	}

	store := newFakeStore()
	o := newTestOrchestrator(t, store)

	result, err := o.Run(context.Background(), urls)
	require.NoError(t, err)

	assert.Equal(t, 6, result.Successful)
	assert.Equal(t, 4, result.Failed)
	assert.Equal(t, 10, result.Total)
	assert.Equal(t, result.Total, result.Successful+result.Failed)
	assert.Equal(t, 6, store.savedCount())

	require.Len(t, result.FailedBooks, 4)
	for _, fb := range result.FailedBooks {
		assert.NotEmpty(t, fb.URL)
		assert.NotEmpty(t, fb.Error)
		assert.NotEmpty(t, fb.Timestamp)
		// The error message names the failure's type.
		assert.Contains(t, fb.Error, "errorString")
		assert.Contains(t, fb.Error, "500")
	}
}

func TestRunSkipsAlreadyIndexedBooks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-fake"))
	}))
	defer srv.Close()

	url := srv.URL + "/book.pdf"
	store := newFakeStore()
	store.indexed[url+"|"+embedding.NewDummy().TableName()] = true

	o := newTestOrchestrator(t, store)
	result, err := o.Run(context.Background(), []string{url})
	require.NoError(t, err)

	// A skip counts as success, but nothing is saved.
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 0, store.savedCount())
}

func TestRunWritesStatusAndFailedFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.pdf" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("%PDF-fake"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	statusPath := filepath.Join(dir, "processing_status.json")
	failedPath := filepath.Join(dir, "failed_books.json")

	store := newFakeStore()
	o := newTestOrchestrator(t, store,
		WithStatusFile(statusPath),
		WithFailedFile(failedPath),
	)

	result, err := o.Run(context.Background(), []string{srv.URL + "/ok.pdf", srv.URL + "/bad.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)

	statusData, err := os.ReadFile(statusPath)
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.Unmarshal(statusData, &status))
	assert.Equal(t, "completed", status["status"])
	assert.Equal(t, float64(2), status["total_books"])
	assert.Equal(t, float64(2), status["processed"])
	assert.Equal(t, float64(1), status["failed"])
	assert.Equal(t, "dummy", status["provider"])
	assert.NotEmpty(t, status["run_id"])
	assert.NotEmpty(t, status["last_updated"])

	failedData, err := os.ReadFile(failedPath)
	require.NoError(t, err)
	var failed []FailedBook
	require.NoError(t, json.Unmarshal(failedData, &failed))
	require.Len(t, failed, 1)
	assert.Equal(t, srv.URL+"/bad.pdf", failed[0].URL)
	assert.NotEmpty(t, failed[0].Error)
}

func TestRunChunksSkipCoverPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-fake"))
	}))
	defer srv.Close()

	url := srv.URL + "/book.pdf"
	store := newFakeStore()
	o := newTestOrchestrator(t, store)

	result, err := o.Run(context.Background(), []string{url})
	require.NoError(t, err)
	require.Equal(t, 1, result.Successful)

	saved := store.saved[url]
	require.NotNil(t, saved)
	assert.Equal(t, "T", saved.Book.Title)
	assert.Equal(t, "A", saved.Book.Author)
	assert.Equal(t, 3, saved.Book.Pages)
	assert.Equal(t, "dummy", saved.Provider)

	require.NotEmpty(t, saved.Chunks)
	for _, chunk := range saved.Chunks {
		assert.True(t, strings.HasPrefix(chunk.Text, "##T## "))
		// Page 1 is elided; remaining pages keep their numbers.
		assert.NotEqual(t, 1, chunk.Sidenr)
		assert.Len(t, chunk.Embedding, 768)
	}
}

func TestRunCancellationReturnsPartialResult(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("%PDF-fake"))
	}))
	defer srv.Close()
	defer close(release)

	var urls []string
	for i := 0; i < 20; i++ {
		urls = append(urls, fmt.Sprintf("%s/%d.pdf", srv.URL, i))
	}

	store := newFakeStore()
	o := newTestOrchestrator(t, store, WithMaxWorkers(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := o.Run(ctx, urls)
	require.NoError(t, err)
	// Nothing dispatched after cancellation; totals stay consistent.
	assert.Equal(t, result.Total, result.Successful+result.Failed)
	assert.Less(t, result.Total, len(urls))
}

func TestErrorMessageNeverEmpty(t *testing.T) {
	assert.Equal(t, "error: No details available", errorMessage(nil))

	msg := errorMessage(fmt.Errorf("fetch failed"))
	assert.Contains(t, msg, "fetch failed")
	assert.Contains(t, msg, "errorString")
}

func TestReadURLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("http://a/1.pdf\n\n  http://a/2.pdf  \n\n"), 0o644))

	urls, err := ReadURLFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a/1.pdf", "http://a/2.pdf"}, urls)

	_, err = ReadURLFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}
