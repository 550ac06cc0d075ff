// Package api implements the HTTP endpoints: semantic search, health
// and readiness probes, and the admin introspection surface.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/arkivsog/bogsog/internal/server"
	"github.com/arkivsog/bogsog/pkg/models"
)

// SearchRequest is the semantic search query.
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResult is one book in the search response. Chunks from the
// same book are merged; distance and page reflect the book's best
// matching chunk.
type SearchResult struct {
	BookID         uint    `json:"book_id"`
	PDFURL         string  `json:"pdf_url"`
	PDFURLWithPage string  `json:"pdf_url_with_page"`
	Titel          string  `json:"titel"`
	Forfatter      string  `json:"forfatter"`
	Sidenr         int     `json:"sidenr"`
	Chunk          string  `json:"chunk"`
	Distance       float64 `json:"distance"`
}

// chunkSeparator joins the matching chunks of one book.
const chunkSeparator = "\n---\n"

// SearchHandler handles semantic search requests.
//
// Endpoint: POST /search
func SearchHandler(srv *server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			srv.Logger.Error("error decoding search request", "error", err)
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			http.Error(w, "Query cannot be empty", http.StatusBadRequest)
			return
		}

		provider := srv.Provider()
		vector, err := provider.Embed(r.Context(), req.Query)
		if err != nil {
			srv.Logger.Error("error embedding search query", "error", err, "provider", provider.Name())
			http.Error(w, "Failed to process query", http.StatusBadGateway)
			return
		}

		threshold := srv.Config.Get().DistanceThreshold
		rows, err := srv.Searcher.Search(r.Context(), provider.TableName(), vector, threshold)
		if err != nil {
			srv.Logger.Error("error executing search", "error", err, "table", provider.TableName())
			http.Error(w, "Search failed", http.StatusInternalServerError)
			return
		}

		results := groupByBook(rows)
		srv.Logger.Info("search completed",
			"rows", len(rows),
			"books", len(results),
			"threshold", threshold,
		)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(results); err != nil {
			srv.Logger.Error("error encoding search response", "error", err)
		}
	})
}

// groupByBook merges per-chunk rows into per-book results. Rows arrive
// ordered by ascending distance, so a book's first row is its best
// match; that row supplies the distance and the page used in
// pdf_url_with_page. Books keep the order of their best rows.
func groupByBook(rows []models.SearchRow) []SearchResult {
	results := make([]SearchResult, 0)
	index := make(map[uint]int)

	for _, row := range rows {
		if i, ok := index[row.BookID]; ok {
			results[i].Chunk += chunkSeparator + row.Chunk
			continue
		}
		index[row.BookID] = len(results)
		results = append(results, SearchResult{
			BookID:         row.BookID,
			PDFURL:         row.PDFURL,
			PDFURLWithPage: fmt.Sprintf("%s#page=%d", row.PDFURL, row.Sidenr),
			Titel:          row.Title,
			Forfatter:      row.Author,
			Sidenr:         row.Sidenr,
			Chunk:          row.Chunk,
			Distance:       row.Distance,
		})
	}

	return results
}
