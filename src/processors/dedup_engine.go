// backend/src/processors/dedup_engine.go
package processors

import (
	"context"
	"fmt"

	"github.com/username/agriarche/backend/src/logger"
	"github.com/username/agriarche/backend/src/models"
	"github.com/username/agriarche/backend/src/store"
)

// DeduplicationEngine filters candidate records whose dedup key is already
// present in the store. The pre-check is a courtesy to the uploader, not a
// correctness guarantee: a race between concurrent uploaders can still reach
// the store, where the unique indexes have the final say.
type DeduplicationEngine struct {
	store    store.Store
	pageSize int
}

func NewDeduplicationEngine(s store.Store, pageSize int) *DeduplicationEngine {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &DeduplicationEngine{store: s, pageSize: pageSize}
}

// ExistingPriceKeys pages through the internal price table until the store
// reports no next page and returns the full dedup-key set. Result ordering
// is irrelevant; only membership is consulted.
func (e *DeduplicationEngine) ExistingPriceKeys(ctx context.Context) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	for page := 1; ; page++ {
		records, hasNext, err := e.store.FetchPricePage(ctx, page, e.pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetching existing price records (page %d): %w", page, err)
		}
		for _, rec := range records {
			keys[rec.DedupKey()] = struct{}{}
		}
		if !hasNext {
			break
		}
	}
	logger.L.Debug("Loaded existing dedup keys", "table", "prices", "count", len(keys))
	return keys, nil
}

// ExistingOtherSourceKeys is the scraped-table counterpart of
// ExistingPriceKeys. Keys here are day-granular by design.
func (e *DeduplicationEngine) ExistingOtherSourceKeys(ctx context.Context) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	for page := 1; ; page++ {
		records, hasNext, err := e.store.FetchOtherSourcePage(ctx, page, e.pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetching existing other-source records (page %d): %w", page, err)
		}
		for _, rec := range records {
			keys[rec.DedupKey()] = struct{}{}
		}
		if !hasNext {
			break
		}
	}
	logger.L.Debug("Loaded existing dedup keys", "table", "other_sources", "count", len(keys))
	return keys, nil
}

// FilterNew returns the candidates whose key is not in the existing set,
// plus the duplicate count. Within the candidate batch itself, later rows
// with a key already seen in the batch are also treated as duplicates, so
// re-uploading a file with internal repeats inserts each observation once.
// Set membership keeps this O(existing + candidates).
func FilterNew[T models.Keyed](candidates []T, existing map[string]struct{}) (fresh []T, duplicates int) {
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		key := c.DedupKey()
		if _, dup := existing[key]; dup {
			duplicates++
			continue
		}
		if _, dup := seen[key]; dup {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, c)
	}
	return fresh, duplicates
}
