// backend/src/store/sqlite_store.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/username/agriarche/backend/src/logger"
	"github.com/username/agriarche/backend/src/models"
)

const sqliteTimeLayout = "2006-01-02 15:04:05"

// sqliteStore implements Store over the embedded SQLite database. It is the
// default backend for single-node deployments.
type sqliteStore struct {
	db      *sql.DB
	timeout time.Duration
}

// NewSQLiteStore wraps an open database handle. Every call is bounded by
// timeout; a timeout fails only that page or batch.
func NewSQLiteStore(db *sql.DB, timeout time.Duration) Store {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &sqliteStore{db: db, timeout: timeout}
}

func (s *sqliteStore) FetchPricePage(ctx context.Context, page, pageSize int) ([]models.PriceRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Fetch one extra row to learn whether a next page exists.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_time, agent_code, state, market, commodity,
		       price_per_bag, weight_of_bag_kg, price_per_kg, availability, commodity_type
		FROM prices
		ORDER BY id ASC
		LIMIT ? OFFSET ?`, pageSize+1, (page-1)*pageSize)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var records []models.PriceRecord
	for rows.Next() {
		var rec models.PriceRecord
		var startTime string
		if err := rows.Scan(&rec.ID, &startTime, &rec.AgentCode, &rec.State, &rec.Market, &rec.Commodity,
			&rec.PricePerBag, &rec.WeightOfBagKg, &rec.PricePerKg, &rec.Availability, &rec.CommodityType); err != nil {
			return nil, false, fmt.Errorf("scanning price row: %w", err)
		}
		rec.StartTime, err = parseStoredTime(startTime)
		if err != nil {
			return nil, false, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	hasNext := len(records) > pageSize
	if hasNext {
		records = records[:pageSize]
	}
	return records, hasNext, nil
}

func (s *sqliteStore) FetchOtherSourcePage(ctx context.Context, page, pageSize int) ([]models.OtherSourceRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, commodity, location, unit, price, source
		FROM other_sources
		ORDER BY id ASC
		LIMIT ? OFFSET ?`, pageSize+1, (page-1)*pageSize)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var records []models.OtherSourceRecord
	for rows.Next() {
		var rec models.OtherSourceRecord
		var date string
		if err := rows.Scan(&rec.ID, &date, &rec.Commodity, &rec.Location, &rec.Unit, &rec.Price, &rec.Source); err != nil {
			return nil, false, fmt.Errorf("scanning other-source row: %w", err)
		}
		rec.Date, err = parseStoredTime(date)
		if err != nil {
			return nil, false, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	hasNext := len(records) > pageSize
	if hasNext {
		records = records[:pageSize]
	}
	return records, hasNext, nil
}

func (s *sqliteStore) InsertPrice(ctx context.Context, rec models.PriceRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prices
			(start_time, agent_code, state, market, commodity,
			 price_per_bag, weight_of_bag_kg, price_per_kg, availability, commodity_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.StartTime.Format(sqliteTimeLayout), rec.AgentCode, rec.State, rec.Market, rec.Commodity,
		rec.PricePerBag, rec.WeightOfBagKg, rec.PricePerKg, rec.Availability, rec.CommodityType,
	)
	if err != nil {
		if isUniqueViolation(err) {
			logger.L.Debug("Skipping duplicate price record on insert", "key", rec.DedupKey())
			return nil
		}
		return fmt.Errorf("inserting price record: %w", err)
	}
	return nil
}

// InsertPrices inserts a batch row by row inside one transaction, skipping
// unique-constraint duplicates and collecting per-record failures without
// aborting the rest of the batch.
func (s *sqliteStore) InsertPrices(ctx context.Context, recs []models.PriceRecord) (int, []error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, []error{fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT INTO prices
			(start_time, agent_code, state, market, commodity,
			 price_per_bag, weight_of_bag_kg, price_per_kg, availability, commodity_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, []error{fmt.Errorf("preparing price insert: %w", err)}
	}
	defer stmt.Close()

	inserted := 0
	var errs []error
	for _, rec := range recs {
		_, err := stmt.ExecContext(ctx,
			rec.StartTime.Format(sqliteTimeLayout), rec.AgentCode, rec.State, rec.Market, rec.Commodity,
			rec.PricePerBag, rec.WeightOfBagKg, rec.PricePerKg, rec.Availability, rec.CommodityType,
		)
		if err != nil {
			if isUniqueViolation(err) {
				logger.L.Debug("Skipping duplicate price record in batch", "key", rec.DedupKey())
				continue
			}
			errs = append(errs, fmt.Errorf("inserting price record %s: %w", rec.DedupKey(), err))
			continue
		}
		inserted++
	}
	if err := dbTx.Commit(); err != nil {
		return 0, []error{fmt.Errorf("committing price batch: %w", err)}
	}
	return inserted, errs
}

func (s *sqliteStore) InsertOtherSources(ctx context.Context, recs []models.OtherSourceRecord) (int, []error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, []error{fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT INTO other_sources (date, commodity, location, unit, price, source)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, []error{fmt.Errorf("preparing other-source insert: %w", err)}
	}
	defer stmt.Close()

	inserted := 0
	var errs []error
	for _, rec := range recs {
		_, err := stmt.ExecContext(ctx,
			rec.Date.Format(sqliteTimeLayout), rec.Commodity, rec.Location, rec.Unit, rec.Price, rec.Source,
		)
		if err != nil {
			if isUniqueViolation(err) {
				logger.L.Debug("Skipping duplicate other-source record in batch", "key", rec.DedupKey())
				continue
			}
			errs = append(errs, fmt.Errorf("inserting other-source record %s: %w", rec.DedupKey(), err))
			continue
		}
		inserted++
	}
	if err := dbTx.Commit(); err != nil {
		return 0, []error{fmt.Errorf("committing other-source batch: %w", err)}
	}
	return inserted, errs
}

func (s *sqliteStore) QueryFilteredPrices(ctx context.Context, f PriceFilter, page, pageSize int) ([]models.PriceRecord, models.Pagination, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	where, args := buildPriceFilter(f)

	var total int
	countQuery := "SELECT COUNT(*) FROM prices" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, models.Pagination{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	query := `
		SELECT id, start_time, agent_code, state, market, commodity,
		       price_per_bag, weight_of_bag_kg, price_per_kg, availability, commodity_type
		FROM prices` + where + `
		ORDER BY start_time ASC, id ASC
		LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, models.Pagination{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var records []models.PriceRecord
	for rows.Next() {
		var rec models.PriceRecord
		var startTime string
		if err := rows.Scan(&rec.ID, &startTime, &rec.AgentCode, &rec.State, &rec.Market, &rec.Commodity,
			&rec.PricePerBag, &rec.WeightOfBagKg, &rec.PricePerKg, &rec.Availability, &rec.CommodityType); err != nil {
			return nil, models.Pagination{}, fmt.Errorf("scanning filtered price row: %w", err)
		}
		rec.StartTime, err = parseStoredTime(startTime)
		if err != nil {
			return nil, models.Pagination{}, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Pagination{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return records, paginate(page, pageSize, total), nil
}

func (s *sqliteStore) RecordUploadRun(ctx context.Context, report *models.UploadReport) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upload_runs
			(run_id, schema, filename, state, rows_read, rows_valid, duplicates, uploaded, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Schema, report.Filename, string(report.State),
		report.RowsRead, report.RowsValid, report.Duplicates, report.Uploaded, report.Failed,
	)
	if err != nil {
		return fmt.Errorf("recording upload run %s: %w", report.RunID, err)
	}
	return nil
}

func buildPriceFilter(f PriceFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.Commodity != "" {
		clauses = append(clauses, "LOWER(commodity) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Commodity)+"%")
	}
	if f.Market != "" {
		clauses = append(clauses, "LOWER(market) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Market)+"%")
	}
	if f.State != "" {
		clauses = append(clauses, "LOWER(state) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.State)+"%")
	}
	if f.MinPrice != nil {
		clauses = append(clauses, "price_per_kg >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		clauses = append(clauses, "price_per_kg <= ?")
		args = append(args, *f.MaxPrice)
	}
	if f.From != nil {
		clauses = append(clauses, "start_time >= ?")
		args = append(args, f.From.Format(sqliteTimeLayout))
	}
	if f.To != nil {
		clauses = append(clauses, "start_time <= ?")
		args = append(args, f.To.Format(sqliteTimeLayout))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func paginate(page, pageSize, total int) models.Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

func parseStoredTime(s string) (time.Time, error) {
	for _, layout := range []string{sqliteTimeLayout, "2006-01-02T15:04:05Z", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable stored timestamp %q", s)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
