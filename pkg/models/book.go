package models

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gorm.io/gorm"
)

// Collection tags partition books by provenance. New values are
// additive only; existing rows are never re-tagged.
type Collection string

const (
	CollectionWW2    Collection = "ww2"
	CollectionSlaegt Collection = "slaegt"
)

// Collections lists all known collection tags.
func Collections() []Collection {
	return []Collection{CollectionWW2, CollectionSlaegt}
}

// Valid reports whether the collection tag is a known value.
func (c Collection) Valid() bool {
	for _, known := range Collections() {
		if c == known {
			return true
		}
	}
	return false
}

// Book is an indexed source document, identified by its PDF URL.
// Title, author and page count are immutable after creation: providers
// processing the same URL later reuse the existing row.
type Book struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// PDFURL is the book's identity; globally unique.
	PDFURL string `gorm:"column:pdf_url;type:varchar(1024);not null;uniqueIndex:idx_books_pdf_url" json:"pdf_url"`

	Title  string `gorm:"type:varchar(500);not null" json:"titel"`
	Author string `gorm:"type:varchar(500);not null" json:"forfatter"`
	Pages  int    `gorm:"not null" json:"pages"`

	Samling Collection `gorm:"type:varchar(50);not null;default:'ww2'" json:"samling"`

	CreatedDatetime time.Time `gorm:"column:created_datetime;autoCreateTime" json:"created_datetime"`
}

// TableName specifies the table name for GORM.
func (Book) TableName() string {
	return "books"
}

// Validate checks the metadata required to create a new book row.
func (b *Book) Validate() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.PDFURL, validation.Required),
		validation.Field(&b.Title, validation.Required),
		validation.Field(&b.Author, validation.Required),
		validation.Field(&b.Pages, validation.Required, validation.Min(1)),
		validation.Field(&b.Samling, validation.Required, validation.By(func(value interface{}) error {
			c, _ := value.(Collection)
			if !c.Valid() {
				return fmt.Errorf("unknown collection %q", c)
			}
			return nil
		})),
	)
}

// FindByURL retrieves a book by its PDF URL. Returns
// gorm.ErrRecordNotFound when no row exists.
func (b *Book) FindByURL(db *gorm.DB, url string) error {
	return db.First(b, "pdf_url = ?", url).Error
}

// Create inserts a new book row. Fails when the URL already exists.
func (b *Book) Create(db *gorm.DB) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid book metadata: %w", err)
	}
	return db.Create(b).Error
}

// GetOrCreate loads the existing row for the book's URL, or creates a
// new one from the receiver's metadata. When creating, the metadata
// must pass Validate.
func (b *Book) GetOrCreate(db *gorm.DB) error {
	err := b.FindByURL(db, b.PDFURL)
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return b.Create(db)
}
