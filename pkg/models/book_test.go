package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Book{}))
	return db
}

func validBook() *Book {
	return &Book{
		PDFURL:  "http://arkiv.example/bog.pdf",
		Title:   "En Bog",
		Author:  "En Forfatter",
		Pages:   12,
		Samling: CollectionWW2,
	}
}

func TestCollectionValid(t *testing.T) {
	assert.True(t, CollectionWW2.Valid())
	assert.True(t, CollectionSlaegt.Valid())
	assert.False(t, Collection("poetry").Valid())
	assert.False(t, Collection("").Valid())
}

func TestBookValidate(t *testing.T) {
	require.NoError(t, validBook().Validate())

	b := validBook()
	b.PDFURL = ""
	assert.Error(t, b.Validate())

	b = validBook()
	b.Title = ""
	assert.Error(t, b.Validate())

	b = validBook()
	b.Pages = 0
	assert.Error(t, b.Validate())

	b = validBook()
	b.Samling = "poetry"
	assert.Error(t, b.Validate())
}

func TestBookCreateAndFind(t *testing.T) {
	db := testDB(t)

	b := validBook()
	require.NoError(t, b.Create(db))
	assert.NotZero(t, b.ID)

	var found Book
	require.NoError(t, found.FindByURL(db, b.PDFURL))
	assert.Equal(t, b.ID, found.ID)
	assert.Equal(t, "En Bog", found.Title)
	assert.Equal(t, CollectionWW2, found.Samling)
}

func TestBookCreateRejectsDuplicateURL(t *testing.T) {
	db := testDB(t)

	require.NoError(t, validBook().Create(db))
	assert.Error(t, validBook().Create(db))
}

func TestBookGetOrCreate(t *testing.T) {
	db := testDB(t)

	first := validBook()
	require.NoError(t, first.GetOrCreate(db))
	require.NotZero(t, first.ID)

	// Second call with different metadata reuses the existing row.
	second := validBook()
	second.Title = "Andet Navn"
	require.NoError(t, second.GetOrCreate(db))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "En Bog", second.Title)

	var count int64
	require.NoError(t, db.Model(&Book{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestBookFindByURLNotFound(t *testing.T) {
	db := testDB(t)

	var b Book
	err := b.FindByURL(db, "http://arkiv.example/missing.pdf")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
