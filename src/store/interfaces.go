// backend/src/store/interfaces.go
package store

import (
	"context"
	"errors"
	"time"

	"github.com/username/agriarche/backend/src/models"
)

// ErrUnavailable marks a store that could not be reached at all (as opposed
// to a query that failed). Callers use it to drive the fail-open decision in
// the dedup pre-check.
var ErrUnavailable = errors.New("price store unavailable")

// PriceFilter is the filtered-read contract: substring matches on the text
// dimensions plus optional price and date ranges. Nil bounds mean unbounded.
type PriceFilter struct {
	Commodity string
	Market    string
	State     string
	MinPrice  *float64
	MaxPrice  *float64
	From      *time.Time
	To        *time.Time
}

// Store is the boundary to the relational store. Implementations must keep
// every call bounded by their configured per-request timeout; a timeout
// fails only that page or batch. Pages are 1-based.
//
// The store's unique indexes, not the dedup pre-check, are the final
// authority on duplicates: concurrent uploaders can both pass the pre-check,
// and the constraint then silently absorbs the second insert.
type Store interface {
	FetchPricePage(ctx context.Context, page, pageSize int) ([]models.PriceRecord, bool, error)
	FetchOtherSourcePage(ctx context.Context, page, pageSize int) ([]models.OtherSourceRecord, bool, error)

	InsertPrice(ctx context.Context, rec models.PriceRecord) error
	InsertPrices(ctx context.Context, recs []models.PriceRecord) (inserted int, errs []error)
	InsertOtherSources(ctx context.Context, recs []models.OtherSourceRecord) (inserted int, errs []error)

	QueryFilteredPrices(ctx context.Context, f PriceFilter, page, pageSize int) ([]models.PriceRecord, models.Pagination, error)

	RecordUploadRun(ctx context.Context, report *models.UploadReport) error
}
