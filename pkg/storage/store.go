// Package storage persists books and provider-partitioned chunk rows
// in PostgreSQL with the pgvector extension, and executes the
// vector-distance scans backing search.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/hashicorp/go-hclog"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/arkivsog/bogsog/pkg/models"
)

// ErrBookNotFound is returned when no book exists for a URL.
var ErrBookNotFound = errors.New("book not found")

// Chunk tables are selected by the embedding provider at runtime, so
// their names are interpolated into SQL. Only plain lowercase
// identifiers are accepted.
var tableNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ProviderTable describes one provider's chunk table. The vector
// dimension is a property of the table, not the row.
type ProviderTable struct {
	Name       string
	Dimensions int
}

// BookWithChunks is the unit of ingestion persistence: a book plus the
// chunk rows destined for one provider's table.
type BookWithChunks struct {
	Book     models.Book
	Chunks   []models.Chunk
	Provider string
	Model    string
}

// Store implements the storage capability set over a shared GORM
// connection pool.
type Store struct {
	db     *gorm.DB
	logger hclog.Logger
}

// New creates a Store using the given connection pool.
func New(db *gorm.DB, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{
		db:     db,
		logger: logger.Named("storage"),
	}
}

// DB exposes the underlying pool, for readiness checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Bootstrap ensures the vector extension, the books table and every
// provider chunk table exist, each with an approximate-nearest-neighbor
// cosine index on the embedding column. Idempotent; safe to run at
// every startup.
func (s *Store) Bootstrap(ctx context.Context, tables []ProviderTable) error {
	db := s.db.WithContext(ctx)

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}

	booksDDL := `
		CREATE TABLE IF NOT EXISTS books (
			id SERIAL PRIMARY KEY,
			pdf_url VARCHAR(1024) NOT NULL UNIQUE,
			title VARCHAR(500) NOT NULL,
			author VARCHAR(500) NOT NULL,
			pages INTEGER NOT NULL,
			samling VARCHAR(50) NOT NULL DEFAULT 'ww2',
			created_datetime TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	if err := db.Exec(booksDDL).Error; err != nil {
		return fmt.Errorf("failed to create books table: %w", err)
	}

	for _, table := range tables {
		if err := validateTableName(table.Name); err != nil {
			return err
		}
		if table.Dimensions <= 0 {
			return fmt.Errorf("invalid vector dimension %d for table %s", table.Dimensions, table.Name)
		}

		chunkDDL := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL PRIMARY KEY,
				book_id INTEGER NOT NULL REFERENCES books(id),
				sidenr INTEGER NOT NULL,
				chunk TEXT NOT NULL,
				embedding vector(%d) NOT NULL,
				provider VARCHAR(50) NOT NULL,
				model VARCHAR(100) NOT NULL,
				created_datetime TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`, table.Name, table.Dimensions)
		if err := db.Exec(chunkDDL).Error; err != nil {
			return fmt.Errorf("failed to create chunk table %s: %w", table.Name, err)
		}

		indexDDL := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`,
			table.Name, table.Name,
		)
		if err := db.Exec(indexDDL).Error; err != nil {
			return fmt.Errorf("failed to create vector index on %s: %w", table.Name, err)
		}

		bookIdxDDL := fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS %s_book_id_idx ON %s (book_id)`,
			table.Name, table.Name,
		)
		if err := db.Exec(bookIdxDDL).Error; err != nil {
			return fmt.Errorf("failed to create book index on %s: %w", table.Name, err)
		}

		s.logger.Debug("ensured chunk table", "table", table.Name, "dimensions", table.Dimensions)
	}

	s.logger.Info("schema bootstrap complete", "chunk_tables", len(tables))
	return nil
}

// FindBookByURL returns the ID of the book with the given URL, or
// ErrBookNotFound.
func (s *Store) FindBookByURL(ctx context.Context, url string) (uint, error) {
	var book models.Book
	err := book.FindByURL(s.db.WithContext(ctx), url)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrBookNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up book %s: %w", url, err)
	}
	return book.ID, nil
}

// CreateBook inserts a new book row. Fails when the URL already exists
// or the metadata is invalid.
func (s *Store) CreateBook(ctx context.Context, book *models.Book) (uint, error) {
	if err := book.Create(s.db.WithContext(ctx)); err != nil {
		return 0, fmt.Errorf("failed to create book %s: %w", book.PDFURL, err)
	}
	return book.ID, nil
}

// GetOrCreateBook returns the existing book ID for the URL, creating
// the row when absent. Creation validates the metadata.
func (s *Store) GetOrCreateBook(ctx context.Context, book *models.Book) (uint, error) {
	if err := book.GetOrCreate(s.db.WithContext(ctx)); err != nil {
		return 0, fmt.Errorf("failed to get or create book %s: %w", book.PDFURL, err)
	}
	return book.ID, nil
}

// BookHasEmbeddingsForProvider reports whether at least one chunk row
// exists for the book in the given provider's table. A book with any
// row there is considered indexed for that provider.
func (s *Store) BookHasEmbeddingsForProvider(ctx context.Context, url, table string) (bool, error) {
	if err := validateTableName(table); err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		SELECT COUNT(1) FROM %s c
		JOIN books b ON b.id = c.book_id
		WHERE b.pdf_url = ?`, table)

	var count int64
	if err := s.db.WithContext(ctx).Raw(query, url).Scan(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check embeddings for %s in %s: %w", url, table, err)
	}
	return count > 0, nil
}

// SaveBookWithChunks atomically persists a book and its chunk rows in
// the given provider table. On failure no partial rows remain.
func (s *Store) SaveBookWithChunks(ctx context.Context, bw *BookWithChunks, table string) (uint, error) {
	if err := validateTableName(table); err != nil {
		return 0, err
	}
	for i, chunk := range bw.Chunks {
		if chunk.Text == "" {
			return 0, fmt.Errorf("chunk %d for %s has empty text", i, bw.Book.PDFURL)
		}
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (book_id, sidenr, chunk, embedding, provider, model)
		VALUES (?, ?, ?, ?::vector, ?, ?)`, table)

	book := bw.Book
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := book.GetOrCreate(tx); err != nil {
			return err
		}
		for _, chunk := range bw.Chunks {
			err := tx.Exec(insert,
				book.ID,
				chunk.Sidenr,
				chunk.Text,
				pgvector.NewVector(chunk.Embedding),
				bw.Provider,
				bw.Model,
			).Error
			if err != nil {
				return fmt.Errorf("failed to insert chunk for page %d: %w", chunk.Sidenr, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to save book %s with %d chunks: %w", bw.Book.PDFURL, len(bw.Chunks), err)
	}

	s.logger.Info("saved book with chunks",
		"url", book.PDFURL,
		"book_id", book.ID,
		"chunks", len(bw.Chunks),
		"table", table,
	)
	return book.ID, nil
}

// Search returns all rows in the provider table with cosine distance
// strictly below the threshold, ordered by ascending distance (row ID
// as the stable tiebreaker).
func (s *Store) Search(ctx context.Context, table string, query []float32, threshold float64) ([]models.SearchRow, error) {
	if err := validateTableName(table); err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`
		SELECT
			b.id AS book_id,
			b.pdf_url,
			b.title,
			b.author,
			c.sidenr,
			c.chunk,
			(c.embedding <=> ?::vector) AS distance
		FROM %s c
		JOIN books b ON b.id = c.book_id
		WHERE (c.embedding <=> ?::vector) < ?
		ORDER BY distance ASC, c.id ASC`, table)

	vec := pgvector.NewVector(query)

	var rows []models.SearchRow
	if err := s.db.WithContext(ctx).Raw(sql, vec, vec, threshold).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", table, err)
	}

	s.logger.Debug("vector search completed",
		"table", table,
		"threshold", threshold,
		"rows", len(rows),
	)
	return rows, nil
}

func validateTableName(table string) error {
	if !tableNameRe.MatchString(table) {
		return fmt.Errorf("invalid chunk table name %q", table)
	}
	return nil
}
