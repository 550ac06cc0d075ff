package storage

import (
	"context"
	"os"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arkivsog/bogsog/pkg/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Book{}))
	return New(db, hclog.NewNullLogger())
}

// postgresStore connects to a live PostgreSQL with pgvector; vector
// behavior cannot be exercised on sqlite.
func postgresStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL-backed test")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return New(db, hclog.NewNullLogger())
}

func sampleBook(url string) models.Book {
	return models.Book{
		PDFURL:  url,
		Title:   "En Bog",
		Author:  "En Forfatter",
		Pages:   10,
		Samling: models.CollectionWW2,
	}
}

func TestValidateTableName(t *testing.T) {
	assert.NoError(t, validateTableName("chunks"))
	assert.NoError(t, validateTableName("chunks_nomic"))
	assert.Error(t, validateTableName("Chunks"))
	assert.Error(t, validateTableName("chunks; drop table books"))
	assert.Error(t, validateTableName(""))
	assert.Error(t, validateTableName("1chunks"))
}

func TestFindBookByURL(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.FindBookByURL(ctx, "http://arkiv.example/none.pdf")
	assert.ErrorIs(t, err, ErrBookNotFound)

	book := sampleBook("http://arkiv.example/bog.pdf")
	id, err := s.CreateBook(ctx, &book)
	require.NoError(t, err)

	found, err := s.FindBookByURL(ctx, book.PDFURL)
	require.NoError(t, err)
	assert.Equal(t, id, found)
}

func TestCreateBookValidates(t *testing.T) {
	s := testStore(t)

	book := sampleBook("http://arkiv.example/bog.pdf")
	book.Title = ""
	_, err := s.CreateBook(context.Background(), &book)
	require.Error(t, err)
}

func TestGetOrCreateBookIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	book := sampleBook("http://arkiv.example/bog.pdf")
	first, err := s.GetOrCreateBook(ctx, &book)
	require.NoError(t, err)

	again := sampleBook("http://arkiv.example/bog.pdf")
	second, err := s.GetOrCreateBook(ctx, &again)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSaveBookWithChunksRejectsBadInput(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.SaveBookWithChunks(ctx, &BookWithChunks{}, "bad;table")
	require.Error(t, err)

	_, err = s.SaveBookWithChunks(ctx, &BookWithChunks{
		Book:   sampleBook("http://arkiv.example/bog.pdf"),
		Chunks: []models.Chunk{{Sidenr: 2, Text: ""}},
	}, "chunks_dummy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty text")
}

func TestBookHasEmbeddingsRejectsBadTable(t *testing.T) {
	s := testStore(t)
	_, err := s.BookHasEmbeddingsForProvider(context.Background(), "http://x", "books; --")
	require.Error(t, err)
}

func TestSearchRejectsBadTable(t *testing.T) {
	s := testStore(t)
	_, err := s.Search(context.Background(), "no good", []float32{0.1}, 0.8)
	require.Error(t, err)
}

func TestVectorRoundTrip(t *testing.T) {
	s := postgresStore(t)
	ctx := context.Background()

	table := ProviderTable{Name: "chunks_dummy", Dimensions: 768}
	require.NoError(t, s.Bootstrap(ctx, []ProviderTable{table}))

	url := "http://arkiv.example/roundtrip.pdf"
	vec := make([]float32, 768)
	vec[0] = 1

	has, err := s.BookHasEmbeddingsForProvider(ctx, url, table.Name)
	require.NoError(t, err)
	if has {
		t.Skip("test book already present, database not clean")
	}

	id, err := s.SaveBookWithChunks(ctx, &BookWithChunks{
		Book:     sampleBook(url),
		Chunks:   []models.Chunk{{Sidenr: 2, Text: "roundtrip text", Embedding: vec}},
		Provider: "dummy",
		Model:    "dummy-embed-v1",
	}, table.Name)
	require.NoError(t, err)
	require.NotZero(t, id)

	has, err = s.BookHasEmbeddingsForProvider(ctx, url, table.Name)
	require.NoError(t, err)
	assert.True(t, has)

	// The identical vector is at distance 0 and passes any threshold.
	rows, err := s.Search(ctx, table.Name, vec, 0.5)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, id, rows[0].BookID)
	assert.Equal(t, "roundtrip text", rows[0].Chunk)
	assert.InDelta(t, 0, rows[0].Distance, 1e-6)

	// An orthogonal vector is at distance 1 and filtered out.
	far := make([]float32, 768)
	far[1] = 1
	rows, err = s.Search(ctx, table.Name, far, 0.5)
	require.NoError(t, err)
	for _, row := range rows {
		assert.NotEqual(t, "roundtrip text", row.Chunk)
	}
}
