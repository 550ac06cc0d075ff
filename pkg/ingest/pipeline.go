// Package ingest drives PDF ingestion: fetch, parse, chunk, embed and
// persist, with per-book failure isolation under a bounded worker
// pool.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/arkivsog/bogsog/pkg/chunker"
	"github.com/arkivsog/bogsog/pkg/embedding"
	"github.com/arkivsog/bogsog/pkg/models"
	"github.com/arkivsog/bogsog/pkg/pdf"
	"github.com/arkivsog/bogsog/pkg/storage"
)

// Fetched PDFs are read fully into memory; cap the body size.
const maxPDFBytes = 512 << 20

// BookStore is the slice of the storage capability set the pipeline
// needs. *storage.Store satisfies it.
type BookStore interface {
	BookHasEmbeddingsForProvider(ctx context.Context, url, table string) (bool, error)
	SaveBookWithChunks(ctx context.Context, bw *storage.BookWithChunks, table string) (uint, error)
}

// Pipeline ingests a single book URL end to end. It is stateless and
// safe for concurrent use; every worker shares one instance.
type Pipeline struct {
	Store      BookStore
	Provider   embedding.Provider
	Strategy   chunker.Strategy
	Extractor  pdf.Extractor
	HTTPClient *http.Client
	MaxTokens  int
	Collection models.Collection
	Logger     hclog.Logger
}

// ProcessURL runs the full ingestion sequence for one URL: idempotency
// check, fetch, parse, skip-first-page, chunk, embed, persist. A nil
// return means the book is indexed for the provider (or already was).
func (p *Pipeline) ProcessURL(ctx context.Context, url string) error {
	table := p.Provider.TableName()

	indexed, err := p.Store.BookHasEmbeddingsForProvider(ctx, url, table)
	if err != nil {
		return fmt.Errorf("idempotency check for %s failed: %w", url, err)
	}
	if indexed {
		p.Logger.Info("skipped: book already has embeddings for provider",
			"url", url,
			"provider", p.Provider.Name(),
			"table", table,
		)
		return nil
	}

	data, err := p.fetch(ctx, url)
	if err != nil {
		return err
	}

	doc, err := p.Extractor.Extract(data)
	if err != nil {
		return fmt.Errorf("failed to parse PDF from %s: %w", url, err)
	}

	pages := chunker.DropFirstPage(doc.PageText)

	chunks, err := p.Strategy.Chunk(pages, p.MaxTokens, doc.Title)
	if err != nil {
		return fmt.Errorf("chunking %s failed: %w", url, err)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks produced from %s (empty document?)", url)
	}

	rows := make([]models.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		vector, err := p.Provider.Embed(ctx, chunk.Text)
		if err != nil {
			return fmt.Errorf("embedding chunk on page %d of %s failed: %w", chunk.Page, url, err)
		}
		rows = append(rows, models.Chunk{
			Sidenr:    chunk.Page,
			Text:      chunk.Text,
			Embedding: vector,
		})
	}

	bookID, err := p.Store.SaveBookWithChunks(ctx, &storage.BookWithChunks{
		Book: models.Book{
			PDFURL:  url,
			Title:   doc.Title,
			Author:  doc.Author,
			Pages:   doc.Pages,
			Samling: p.Collection,
		},
		Chunks:   rows,
		Provider: p.Provider.Name(),
		Model:    p.Provider.Model(),
	}, table)
	if err != nil {
		return err
	}

	p.Logger.Info("ingested book",
		"url", url,
		"book_id", bookID,
		"pages", doc.Pages,
		"chunks", len(rows),
		"provider", p.Provider.Name(),
	)
	return nil
}

// fetch downloads the PDF through the shared HTTP session.
func (p *Pipeline) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	return data, nil
}
