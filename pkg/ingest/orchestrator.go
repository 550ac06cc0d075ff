package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/arkivsog/bogsog/pkg/chunker"
	"github.com/arkivsog/bogsog/pkg/embedding"
	"github.com/arkivsog/bogsog/pkg/models"
	"github.com/arkivsog/bogsog/pkg/pdf"
)

// FailedBook records one book that could not be ingested.
type FailedBook struct {
	URL       string `json:"url"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// Result aggregates per-URL outcomes of one run. Successful plus
// Failed always equals Total, and every FailedBooks entry carries a
// non-empty error message.
type Result struct {
	Successful  int          `json:"successful"`
	Failed      int          `json:"failed"`
	Total       int          `json:"total"`
	FailedBooks []FailedBook `json:"failed_books"`
}

// Orchestrator drives ingestion over a URL list with bounded
// concurrency. It owns the shared HTTP session; the database pool is
// owned by the caller and reached through the store.
type Orchestrator struct {
	store      BookStore
	provider   embedding.Provider
	strategy   chunker.Strategy
	extractor  pdf.Extractor
	httpClient *http.Client
	logger     hclog.Logger
	maxWorkers int
	maxTokens  int
	collection models.Collection
	statusPath string
	failedPath string
}

// Option is a functional option for creating an Orchestrator.
type Option func(*Orchestrator)

// WithStore sets the storage backend.
func WithStore(store BookStore) Option {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithProvider sets the embedding provider.
func WithProvider(provider embedding.Provider) Option {
	return func(o *Orchestrator) {
		o.provider = provider
	}
}

// WithStrategy sets the chunking strategy.
func WithStrategy(strategy chunker.Strategy) Option {
	return func(o *Orchestrator) {
		o.strategy = strategy
	}
}

// WithExtractor sets the PDF extractor.
func WithExtractor(extractor pdf.Extractor) Option {
	return func(o *Orchestrator) {
		o.extractor = extractor
	}
}

// WithHTTPClient sets the shared HTTP session used for PDF fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Orchestrator) {
		o.httpClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMaxWorkers bounds worker concurrency.
func WithMaxWorkers(n int) Option {
	return func(o *Orchestrator) {
		o.maxWorkers = n
	}
}

// WithMaxTokens sets the per-chunk word budget for strategies that
// honor it.
func WithMaxTokens(n int) Option {
	return func(o *Orchestrator) {
		o.maxTokens = n
	}
}

// WithCollection tags ingested books with a collection.
func WithCollection(c models.Collection) Option {
	return func(o *Orchestrator) {
		o.collection = c
	}
}

// WithStatusFile enables the processing_status.json document at the
// given path.
func WithStatusFile(path string) Option {
	return func(o *Orchestrator) {
		o.statusPath = path
	}
}

// WithFailedFile enables the failed_books.json document at the given
// path, written on completion when failures occurred.
func WithFailedFile(path string) Option {
	return func(o *Orchestrator) {
		o.failedPath = path
	}
}

// NewOrchestrator creates an ingestion orchestrator.
func NewOrchestrator(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		extractor:  pdf.DefaultExtractor{},
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		maxWorkers: 5,
		maxTokens:  500,
		collection: models.CollectionWW2,
		logger: hclog.New(&hclog.LoggerOptions{
			Name: "ingest",
		}),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if o.provider == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if o.strategy == nil {
		return nil, fmt.Errorf("chunking strategy is required")
	}
	if o.maxWorkers <= 0 {
		o.maxWorkers = 5
	}

	return o, nil
}

// Run ingests the URL list and returns the aggregated result. A single
// book's failure never terminates the run; cancellation stops dispatch
// of new URLs, waits for in-flight workers, and returns the partial
// result.
func (o *Orchestrator) Run(ctx context.Context, urls []string) (*Result, error) {
	pipe := &Pipeline{
		Store:      o.store,
		Provider:   o.provider,
		Strategy:   o.strategy,
		Extractor:  o.extractor,
		HTTPClient: o.httpClient,
		MaxTokens:  o.maxTokens,
		Collection: o.collection,
		Logger:     o.logger.Named("pipeline"),
	}

	status := newStatusWriter(o.statusPath, len(urls), o.provider.Name(), o.provider.Model(), o.logger)
	status.update("running", 0, 0)

	o.logger.Info("starting ingestion run",
		"urls", len(urls),
		"workers", o.maxWorkers,
		"provider", o.provider.Name(),
		"strategy", o.strategy.Name(),
	)

	result := &Result{}
	var mu sync.Mutex

	workers := o.maxWorkers
	if len(urls) < workers {
		workers = len(urls)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for url := range jobs {
				err := pipe.ProcessURL(ctx, url)

				mu.Lock()
				if err != nil {
					result.Failed++
					result.FailedBooks = append(result.FailedBooks, FailedBook{
						URL:       url,
						Error:     errorMessage(err),
						Timestamp: time.Now().UTC().Format(time.RFC3339),
					})
					o.logger.Error("book ingestion failed", "url", url, "error", err)
				} else {
					result.Successful++
				}
				processed := result.Successful + result.Failed
				failed := result.Failed
				mu.Unlock()

				status.update("running", processed, failed)
			}
		}()
	}

	cancelled := false
dispatch:
	for _, url := range urls {
		select {
		case <-ctx.Done():
			cancelled = true
			break dispatch
		case jobs <- url:
		}
	}
	close(jobs)
	wg.Wait()

	result.Total = result.Successful + result.Failed
	if cancelled {
		o.logger.Warn("ingestion run cancelled",
			"dispatched", result.Total,
			"requested", len(urls),
		)
	}

	o.logger.Info("ingestion run completed",
		"successful", result.Successful,
		"failed", result.Failed,
		"total", result.Total,
	)

	finalState := "completed"
	if cancelled {
		finalState = "cancelled"
	}
	status.update(finalState, result.Total, result.Failed)

	var errs *multierror.Error
	if o.failedPath != "" && len(result.FailedBooks) > 0 {
		if err := writeFailedBooks(o.failedPath, result.FailedBooks); err != nil {
			o.logger.Error("failed to write failed books document", "path", o.failedPath, "error", err)
			errs = multierror.Append(errs, err)
		}
	}

	return result, errs.ErrorOrNil()
}

// errorMessage renders a per-book error as "<type>: <message>" and is
// never empty.
func errorMessage(err error) string {
	if err == nil {
		return "error: No details available"
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = "No details available"
	}
	return fmt.Sprintf("%T: %s", err, msg)
}
