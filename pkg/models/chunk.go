package models

// Chunk is a contiguous span of a book's text together with its
// embedding, destined for a provider-specific chunk table. The table
// (and therefore the vector dimension) is chosen by the embedding
// provider, so chunk rows are written with raw SQL rather than a fixed
// GORM model.
type Chunk struct {
	// Sidenr is the 1-based page number in the source PDF. Original
	// page numbers are preserved even when page 1 is elided.
	Sidenr int

	// Text is the chunk payload. Always a non-empty string.
	Text string

	// Embedding is the vector for Text, with the provider table's
	// fixed dimension.
	Embedding []float32
}

// SearchRow is one row returned by a vector-distance scan, joined
// with its book metadata.
type SearchRow struct {
	BookID   uint    `gorm:"column:book_id"`
	PDFURL   string  `gorm:"column:pdf_url"`
	Title    string  `gorm:"column:title"`
	Author   string  `gorm:"column:author"`
	Sidenr   int     `gorm:"column:sidenr"`
	Chunk    string  `gorm:"column:chunk"`
	Distance float64 `gorm:"column:distance"`
}
