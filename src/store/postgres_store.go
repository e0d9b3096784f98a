// backend/src/store/postgres_store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/username/agriarche/backend/src/logger"
	"github.com/username/agriarche/backend/src/models"
)

// postgresStore implements Store over a pgx connection pool. Used when
// DATABASE_URL points at a managed Postgres instead of the embedded SQLite.
type postgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgresStore connects a pool to connString and verifies it with a ping.
func NewPostgresStore(ctx context.Context, connString string, timeout time.Duration) (Store, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &postgresStore{pool: pool, timeout: timeout}, nil
}

func (s *postgresStore) FetchPricePage(ctx context.Context, page, pageSize int) ([]models.PriceRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, start_time, agent_code, state, market, commodity,
		       price_per_bag, weight_of_bag_kg, price_per_kg, availability, commodity_type
		FROM prices
		ORDER BY id ASC
		LIMIT $1 OFFSET $2`, pageSize+1, (page-1)*pageSize)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var records []models.PriceRecord
	for rows.Next() {
		var rec models.PriceRecord
		if err := rows.Scan(&rec.ID, &rec.StartTime, &rec.AgentCode, &rec.State, &rec.Market, &rec.Commodity,
			&rec.PricePerBag, &rec.WeightOfBagKg, &rec.PricePerKg, &rec.Availability, &rec.CommodityType); err != nil {
			return nil, false, fmt.Errorf("scanning price row: %w", err)
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

func (s *postgresStore) FetchOtherSourcePage(ctx context.Context, page, pageSize int) ([]models.OtherSourceRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, date, commodity, location, unit, price, source
		FROM other_sources
		ORDER BY id ASC
		LIMIT $1 OFFSET $2`, pageSize+1, (page-1)*pageSize)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var records []models.OtherSourceRecord
	for rows.Next() {
		var rec models.OtherSourceRecord
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.Commodity, &rec.Location, &rec.Unit, &rec.Price, &rec.Source); err != nil {
			return nil, false, fmt.Errorf("scanning other-source row: %w", err)
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

func (s *postgresStore) InsertPrice(ctx context.Context, rec models.PriceRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO prices
			(start_time, agent_code, state, market, commodity,
			 price_per_bag, weight_of_bag_kg, price_per_kg, availability, commodity_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING`,
		rec.StartTime, rec.AgentCode, rec.State, rec.Market, rec.Commodity,
		rec.PricePerBag, rec.WeightOfBagKg, rec.PricePerKg, rec.Availability, rec.CommodityType,
	)
	if err != nil {
		return fmt.Errorf("inserting price record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		logger.L.Debug("Skipping duplicate price record on insert", "key", rec.DedupKey())
	}
	return nil
}

// InsertPrices sends the batch through a pgx pipeline. ON CONFLICT DO NOTHING
// absorbs duplicates; other per-row errors are collected without aborting the
// remainder of the batch.
func (s *postgresStore) InsertPrices(ctx context.Context, recs []models.PriceRecord) (int, []error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(`
			INSERT INTO prices
				(start_time, agent_code, state, market, commodity,
				 price_per_bag, weight_of_bag_kg, price_per_kg, availability, commodity_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT DO NOTHING`,
			rec.StartTime, rec.AgentCode, rec.State, rec.Market, rec.Commodity,
			rec.PricePerBag, rec.WeightOfBagKg, rec.PricePerKg, rec.Availability, rec.CommodityType,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	var errs []error
	for _, rec := range recs {
		tag, err := results.Exec()
		if err != nil {
			if isPgUniqueViolation(err) {
				logger.L.Debug("Skipping duplicate price record in batch", "key", rec.DedupKey())
				continue
			}
			errs = append(errs, fmt.Errorf("inserting price record %s: %w", rec.DedupKey(), err))
			continue
		}
		if tag.RowsAffected() > 0 {
			inserted++
		}
	}
	return inserted, errs
}

func (s *postgresStore) InsertOtherSources(ctx context.Context, recs []models.OtherSourceRecord) (int, []error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(`
			INSERT INTO other_sources (date, commodity, location, unit, price, source)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT DO NOTHING`,
			rec.Date, rec.Commodity, rec.Location, rec.Unit, rec.Price, rec.Source,
		)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	var errs []error
	for _, rec := range recs {
		tag, err := results.Exec()
		if err != nil {
			if isPgUniqueViolation(err) {
				logger.L.Debug("Skipping duplicate other-source record in batch", "key", rec.DedupKey())
				continue
			}
			errs = append(errs, fmt.Errorf("inserting other-source record %s: %w", rec.DedupKey(), err))
			continue
		}
		if tag.RowsAffected() > 0 {
			inserted++
		}
	}
	return inserted, errs
}

func (s *postgresStore) QueryFilteredPrices(ctx context.Context, f PriceFilter, page, pageSize int) ([]models.PriceRecord, models.Pagination, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	where, args := buildPgPriceFilter(f)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM prices"+where, args...).Scan(&total); err != nil {
		return nil, models.Pagination{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	query := fmt.Sprintf(`
		SELECT id, start_time, agent_code, state, market, commodity,
		       price_per_bag, weight_of_bag_kg, price_per_kg, availability, commodity_type
		FROM prices%s
		ORDER BY start_time ASC, id ASC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, models.Pagination{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var records []models.PriceRecord
	for rows.Next() {
		var rec models.PriceRecord
		if err := rows.Scan(&rec.ID, &rec.StartTime, &rec.AgentCode, &rec.State, &rec.Market, &rec.Commodity,
			&rec.PricePerBag, &rec.WeightOfBagKg, &rec.PricePerKg, &rec.Availability, &rec.CommodityType); err != nil {
			return nil, models.Pagination{}, fmt.Errorf("scanning filtered price row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Pagination{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return records, paginate(page, pageSize, total), nil
}

func (s *postgresStore) RecordUploadRun(ctx context.Context, report *models.UploadReport) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO upload_runs
			(run_id, schema, filename, state, rows_read, rows_valid, duplicates, uploaded, failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		report.RunID, report.Schema, report.Filename, string(report.State),
		report.RowsRead, report.RowsValid, report.Duplicates, report.Uploaded, report.Failed,
	)
	if err != nil {
		return fmt.Errorf("recording upload run %s: %w", report.RunID, err)
	}
	return nil
}

func buildPgPriceFilter(f PriceFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Commodity != "" {
		add("commodity ILIKE $%d", "%"+f.Commodity+"%")
	}
	if f.Market != "" {
		add("market ILIKE $%d", "%"+f.Market+"%")
	}
	if f.State != "" {
		add("state ILIKE $%d", "%"+f.State+"%")
	}
	if f.MinPrice != nil {
		add("price_per_kg >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("price_per_kg <= $%d", *f.MaxPrice)
	}
	if f.From != nil {
		add("start_time >= $%d", *f.From)
	}
	if f.To != nil {
		add("start_time <= $%d", *f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
