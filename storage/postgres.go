package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carsync/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// Staging upserts
// =============================================================================

const stagingUpsertQuery = `
	INSERT INTO cars_staging (
		id, make, model, year, price, price_cents, mileage, vin, fuel,
		transmission, color, condition, lot_number, images, source_site,
		sale_status, content_hash, raw_payload, last_api_sync, is_active
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20
	)
	ON CONFLICT (id) DO UPDATE SET
		make = EXCLUDED.make,
		model = EXCLUDED.model,
		year = EXCLUDED.year,
		price = EXCLUDED.price,
		price_cents = EXCLUDED.price_cents,
		mileage = COALESCE(NULLIF(EXCLUDED.mileage, ''), cars_staging.mileage),
		vin = COALESCE(NULLIF(EXCLUDED.vin, ''), cars_staging.vin),
		fuel = EXCLUDED.fuel,
		transmission = EXCLUDED.transmission,
		color = EXCLUDED.color,
		condition = EXCLUDED.condition,
		lot_number = COALESCE(NULLIF(EXCLUDED.lot_number, ''), cars_staging.lot_number),
		images = EXCLUDED.images,
		source_site = EXCLUDED.source_site,
		sale_status = EXCLUDED.sale_status,
		content_hash = EXCLUDED.content_hash,
		raw_payload = EXCLUDED.raw_payload,
		last_api_sync = EXCLUDED.last_api_sync,
		is_active = EXCLUDED.is_active`

// UpsertStagingBatch writes one micro-batch into the staging table using a
// single round trip. Duplicate ids within a run collapse via ON CONFLICT, so
// replays are harmless.
func (s *PostgresStore) UpsertStagingBatch(ctx context.Context, records []*models.CachedCarRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(stagingUpsertQuery,
			r.ID, r.Make, r.Model, r.Year, r.Price, r.PriceCents, r.Mileage, r.VIN, r.Fuel,
			r.Transmission, r.Color, r.Condition, r.LotNumber, r.Images, r.SourceSite,
			r.SaleStatus, r.ContentHash, r.RawPayload, r.LastAPISync, r.IsActive,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	written := 0
	var firstErr error
	for range records {
		if _, err := br.Exec(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written++
	}
	return written, firstErr
}

// ClearStaging empties the staging table before a fresh (non-resumed) run.
func (s *PostgresStore) ClearStaging(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE cars_staging`)
	return err
}

// BulkMergeFromStaging moves the staged rows into the serving table in one
// server-side call and returns the number of rows merged.
func (s *PostgresStore) BulkMergeFromStaging(ctx context.Context) (int, error) {
	var merged int
	err := s.pool.QueryRow(ctx, `SELECT bulk_merge_from_staging()`).Scan(&merged)
	if err != nil {
		return 0, fmt.Errorf("bulk merge: %w", err)
	}
	return merged, nil
}

// MarkMissingInactive flags serving rows not touched by the given run and
// returns how many were deactivated.
func (s *PostgresStore) MarkMissingInactive(ctx context.Context, runID uuid.UUID) (int, error) {
	var marked int
	err := s.pool.QueryRow(ctx, `SELECT mark_missing_inactive($1)`, runID).Scan(&marked)
	if err != nil {
		return 0, fmt.Errorf("mark missing inactive: %w", err)
	}
	return marked, nil
}

// =============================================================================
// Catalog reads
// =============================================================================

const carColumns = `id, make, model, year, price, price_cents, mileage, vin, fuel,
		transmission, color, condition, lot_number, images, source_site,
		sale_status, content_hash, last_api_sync, is_active`

func scanCar(row pgx.Row) (*models.CachedCarRecord, error) {
	var c models.CachedCarRecord
	err := row.Scan(
		&c.ID, &c.Make, &c.Model, &c.Year, &c.Price, &c.PriceCents, &c.Mileage, &c.VIN, &c.Fuel,
		&c.Transmission, &c.Color, &c.Condition, &c.LotNumber, &c.Images, &c.SourceSite,
		&c.SaleStatus, &c.ContentHash, &c.LastAPISync, &c.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) GetCarByID(ctx context.Context, id string) (*models.CachedCarRecord, error) {
	query := `SELECT ` + carColumns + ` FROM cars WHERE id = $1`

	c, err := scanCar(s.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) ListCars(ctx context.Context, filter models.CarFilter) ([]models.CachedCarRecord, error) {
	var conds []string
	var args []interface{}

	conds = append(conds, "is_active = true")
	if filter.Make != "" {
		args = append(args, filter.Make)
		conds = append(conds, fmt.Sprintf("make = $%d", len(args)))
	}
	if filter.Model != "" {
		args = append(args, filter.Model)
		conds = append(conds, fmt.Sprintf("model = $%d", len(args)))
	}
	if filter.YearMin > 0 {
		args = append(args, filter.YearMin)
		conds = append(conds, fmt.Sprintf("year >= $%d", len(args)))
	}
	if filter.YearMax > 0 {
		args = append(args, filter.YearMax)
		conds = append(conds, fmt.Sprintf("year <= $%d", len(args)))
	}
	if filter.PriceMin > 0 {
		args = append(args, filter.PriceMin)
		conds = append(conds, fmt.Sprintf("price >= $%d", len(args)))
	}
	if filter.PriceMax > 0 {
		args = append(args, filter.PriceMax)
		conds = append(conds, fmt.Sprintf("price <= $%d", len(args)))
	}
	if filter.Fuel != "" {
		args = append(args, filter.Fuel)
		conds = append(conds, fmt.Sprintf("fuel = $%d", len(args)))
	}

	order := "last_api_sync DESC"
	switch filter.SortBy {
	case "price_asc":
		order = "price ASC"
	case "price_desc":
		order = "price DESC"
	case "year_desc":
		order = "year DESC"
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	args = append(args, limit)
	limitIdx := len(args)
	args = append(args, filter.Offset)
	offsetIdx := len(args)

	query := fmt.Sprintf(
		`SELECT %s FROM cars WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		carColumns, strings.Join(conds, " AND "), order, limitIdx, offsetIdx,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cars []models.CachedCarRecord
	for rows.Next() {
		c, err := scanCar(rows)
		if err != nil {
			return nil, err
		}
		cars = append(cars, *c)
	}
	return cars, rows.Err()
}

// FacetCounts returns value/count pairs for one catalog column. Only a fixed
// set of columns is allowed so the column name can be interpolated safely.
func (s *PostgresStore) FacetCounts(ctx context.Context, column string) ([]models.FacetCount, error) {
	switch column {
	case "make", "fuel", "transmission", "color", "year":
	default:
		return nil, fmt.Errorf("unsupported facet column: %s", column)
	}

	query := fmt.Sprintf(
		`SELECT %s::text, COUNT(*) FROM cars WHERE is_active = true GROUP BY %s ORDER BY COUNT(*) DESC`,
		column, column,
	)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facets []models.FacetCount
	for rows.Next() {
		var f models.FacetCount
		if err := rows.Scan(&f.Value, &f.Count); err != nil {
			return nil, err
		}
		facets = append(facets, f)
	}
	return facets, rows.Err()
}

// GetStaleActiveCars returns active rows not refreshed recently, oldest first.
func (s *PostgresStore) GetStaleActiveCars(ctx context.Context, staleDuration time.Duration, limit int) ([]models.CachedCarRecord, error) {
	query := `SELECT ` + carColumns + `
		FROM cars
		WHERE is_active = true AND last_api_sync < $1
		ORDER BY last_api_sync
		LIMIT $2`

	staleTime := time.Now().Add(-staleDuration)
	rows, err := s.pool.Query(ctx, query, staleTime, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cars []models.CachedCarRecord
	for rows.Next() {
		c, err := scanCar(rows)
		if err != nil {
			return nil, err
		}
		cars = append(cars, *c)
	}
	return cars, rows.Err()
}

func (s *PostgresStore) MarkCarInactive(ctx context.Context, id string) error {
	query := `UPDATE cars SET is_active = false, sale_status = $2 WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id, models.SaleStatusSold)
	return err
}

// =============================================================================
// Car Images
// =============================================================================

func (s *PostgresStore) UpsertCarImage(ctx context.Context, img *models.CarImage) error {
	query := `
		INSERT INTO car_images (id, car_id, original_url, s3_key, content_hash, position, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (original_url) DO UPDATE SET
			position = EXCLUDED.position
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		img.ID, img.CarID, img.OriginalURL, img.S3Key, img.ContentHash, img.Position, img.Status, img.Attempts, img.CreatedAt,
	).Scan(&img.ID)
}

// QueueNewImages creates pending car_images rows for image URLs on active
// cars that have no archive row yet. Returns the number queued.
func (s *PostgresStore) QueueNewImages(ctx context.Context) (int, error) {
	query := `
		INSERT INTO car_images (id, car_id, original_url, position, status, attempts, created_at)
		SELECT gen_random_uuid(), c.id, u.url, u.position - 1, 'pending', 0, NOW()
		FROM cars c, unnest(c.images) WITH ORDINALITY AS u(url, position)
		WHERE c.is_active = true
		ON CONFLICT (original_url) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetPendingImages(ctx context.Context, limit int) ([]models.CarImage, error) {
	query := `
		SELECT id, car_id, original_url, s3_key, content_hash, position, status, attempts, created_at
		FROM car_images
		WHERE status = 'pending' AND attempts < 3
		ORDER BY created_at
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.CarImage
	for rows.Next() {
		var img models.CarImage
		if err := rows.Scan(
			&img.ID, &img.CarID, &img.OriginalURL, &img.S3Key, &img.ContentHash, &img.Position, &img.Status, &img.Attempts, &img.CreatedAt,
		); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *PostgresStore) UpdateImageStatus(ctx context.Context, id uuid.UUID, status string, s3Key *string, contentHash string, attempts int) error {
	query := `UPDATE car_images SET status = $2, s3_key = COALESCE($3, s3_key), content_hash = COALESCE($4, content_hash), attempts = $5 WHERE id = $1`
	_, err := s.pool.Exec(ctx, query, id, status, s3Key, contentHash, attempts)
	return err
}

// =============================================================================
// Sync Runs
// =============================================================================

func (s *PostgresStore) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	query := `
		INSERT INTO sync_runs (run_id, source, started_at, status, pages_fetched, rows_processed, rows_upserted, rows_dropped, api_errors, db_errors, error_message, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		run.RunID, run.Source, run.StartedAt, run.Status, run.PagesFetched, run.RowsProcessed, run.RowsUpserted, run.RowsDropped, run.APIErrors, run.DBErrors, run.ErrorMessage, run.Metadata,
	).Scan(&run.ID)
}

func (s *PostgresStore) UpdateSyncRun(ctx context.Context, run *models.SyncRun) error {
	query := `
		UPDATE sync_runs SET
			finished_at = $2, status = $3, pages_fetched = $4, rows_processed = $5,
			rows_upserted = $6, rows_dropped = $7, api_errors = $8, db_errors = $9,
			error_message = $10, metadata = $11
		WHERE id = $1`

	_, err := s.pool.Exec(ctx, query,
		run.ID, run.FinishedAt, run.Status, run.PagesFetched, run.RowsProcessed,
		run.RowsUpserted, run.RowsDropped, run.APIErrors, run.DBErrors,
		run.ErrorMessage, run.Metadata,
	)
	return err
}

// =============================================================================
// Sync Logs
// =============================================================================

func (s *PostgresStore) CreateSyncLog(ctx context.Context, entry *models.SyncLog) error {
	query := `
		INSERT INTO sync_logs (run_id, timestamp, level, message, source)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return s.pool.QueryRow(ctx, query,
		entry.RunID, entry.Timestamp, entry.Level, entry.Message, entry.Source,
	).Scan(&entry.ID)
}
