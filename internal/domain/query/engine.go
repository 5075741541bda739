// Package query searches, pages and exports medical records.
package query

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/medrecord/internal/domain/record"
	"github.com/ehr/medrecord/internal/platform/blobstore"
	"github.com/ehr/medrecord/internal/platform/metrics"
	"github.com/ehr/medrecord/pkg/pagination"
)

// RecordReader is the read side of the record store.
type RecordReader interface {
	GetRecord(ctx context.Context, id string, includeVersions bool) (*record.View, error)
	SearchRecords(ctx context.Context, q record.SearchQuery) ([]*record.Record, int, error)
}

type Engine struct {
	records   RecordReader
	blobs     blobstore.BlobStore
	exportDir string
	now       func() time.Time
	logger    zerolog.Logger
}

func NewEngine(records RecordReader, blobs blobstore.BlobStore, exportDir string, logger zerolog.Logger) *Engine {
	return &Engine{
		records:   records,
		blobs:     blobs,
		exportDir: exportDir,
		now:       time.Now,
		logger:    logger.With().Str("component", "query_engine").Logger(),
	}
}

// SearchParams holds the caller's search request. Empty filter fields are
// not applied.
type SearchParams struct {
	record.Filter
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}

// Page is one page of search results.
type Page struct {
	Items  []*record.Record
	Total  int
	Params pagination.Params
}

// Search runs a filtered, sorted and paged search. Pages are 1-based; a page
// past the last match is empty. Unknown sort fields fall back to created_at
// and any order other than "asc" sorts descending.
func (e *Engine) Search(ctx context.Context, p SearchParams) (page *Page, err error) {
	defer metrics.Observe("query_engine", "search", time.Now(), &err)

	pg := pagination.New(p.Page, p.PageSize)
	field := record.SortField(p.SortBy)
	if !field.Valid() {
		field = record.SortCreatedAt
	}

	items, total, err := e.records.SearchRecords(ctx, record.SearchQuery{
		Filter:     p.Filter,
		SortBy:     field,
		Descending: !strings.EqualFold(p.SortOrder, "asc"),
		Limit:      pg.Limit(),
		Offset:     pg.Offset(),
	})
	if err != nil {
		e.logger.Error().Err(err).Str("op", "search").Str("department", p.Department).Msg("search failed")
		return nil, err
	}
	if items == nil {
		items = []*record.Record{}
	}
	return &Page{Items: items, Total: total, Params: pg}, nil
}
