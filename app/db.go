package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/abhi007singh/legendary-sniffle/app/models"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS product_rows (
		id                 TEXT PRIMARY KEY,
		batch_id           TEXT NOT NULL,
		s_no               INT NOT NULL,
		product_name       TEXT NOT NULL,
		input_image_urls   TEXT[] NOT NULL,
		output_image_urls  TEXT[] NOT NULL DEFAULT '{}',
		status             TEXT NOT NULL DEFAULT 'processing',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (batch_id, s_no)
	);
	CREATE INDEX IF NOT EXISTS product_rows_batch_idx ON product_rows (batch_id, s_no);
`

// PostgresStore is the lib/pq backed RowStore.
type PostgresStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenPostgres opens and pings a connection pool.
func OpenPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}

	logger.Info().Msg("Connected to Postgres")
	return &PostgresStore{db: d, log: logger}, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(d *sql.DB, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{db: d, log: logger}
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// EnsureSchema creates the rows table and its index when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *PostgresStore) CreateRows(ctx context.Context, rows []models.Row) error {
	if len(rows) == 0 {
		return nil
	}

	// One transaction for the whole batch
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1) Temp staging table
	_, err = tx.ExecContext(ctx, `
		CREATE TEMP TABLE tmp_product_rows (
			id                TEXT,
			batch_id          TEXT,
			s_no              INT,
			product_name      TEXT,
			input_image_urls  TEXT[],
			status            TEXT
		) ON COMMIT DROP;
	`)
	if err != nil {
		return err
	}

	// 2) COPY into tmp_product_rows
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(
		"tmp_product_rows",
		"id",
		"batch_id",
		"s_no",
		"product_name",
		"input_image_urls",
		"status",
	))
	if err != nil {
		return err
	}

	for _, r := range rows {
		status := r.Status
		if status == "" {
			status = models.StatusProcessing
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID,
			r.BatchID,
			r.SequenceNumber,
			r.ProductName,
			pq.Array(r.SourceImageURLs),
			string(status),
		); err != nil {
			stmt.Close()
			return err
		}
	}

	// finish COPY
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	// 3) Insert into the real table; any conflict aborts the batch
	_, err = tx.ExecContext(ctx, `
		INSERT INTO product_rows (id, batch_id, s_no, product_name, input_image_urls, status)
		SELECT id, batch_id, s_no, product_name, input_image_urls, status
		FROM tmp_product_rows;
	`)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug().Str("batch_id", rows[0].BatchID).Int("rows", len(rows)).Msg("rows created")
	return nil
}

// FindRows reads every row of a batch ordered by s_no.
func (s *PostgresStore) FindRows(ctx context.Context, batchID string) ([]models.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			id,
			batch_id,
			s_no,
			product_name,
			input_image_urls,
			output_image_urls,
			status,
			created_at,
			updated_at
		FROM product_rows
		WHERE batch_id = $1
		ORDER BY s_no ASC
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Row
	for rows.Next() {
		var r models.Row
		var status string
		if err := rows.Scan(
			&r.ID,
			&r.BatchID,
			&r.SequenceNumber,
			&r.ProductName,
			pq.Array(&r.SourceImageURLs),
			pq.Array(&r.OutputImageURLs),
			&status,
			&r.CreatedAt,
			&r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		r.Status = models.RowStatus(status)
		if r.OutputImageURLs == nil {
			r.OutputImageURLs = []string{}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) FindRowStatuses(ctx context.Context, batchID string) ([]models.RowStatusView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_name, status
		FROM product_rows
		WHERE batch_id = $1
		ORDER BY s_no ASC
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RowStatusView
	for rows.Next() {
		var v models.RowStatusView
		var status string
		if err := rows.Scan(&v.ID, &v.ProductName, &status); err != nil {
			return nil, err
		}
		v.Status = models.RowStatus(status)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveOutputs(ctx context.Context, row models.Row) error {
	outputs := row.OutputImageURLs
	if outputs == nil {
		outputs = []string{}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE product_rows
		SET output_image_urls = $2, updated_at = now()
		WHERE id = $1;
	`, row.ID, pq.Array(outputs))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetBatchStatus(ctx context.Context, batchID string, status models.RowStatus) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE product_rows
		SET status = $2, updated_at = now()
		WHERE batch_id = $1;
	`, batchID, string(status))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		s.log.Warn().Str("batch_id", batchID).Msg("SetBatchStatus: no rows found")
	}
	return int(n), nil
}
