package publish

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"compsheet/internal"
)

const insertBatchSize = 50

// compColumns are the published columns after report_id, in order.
var compColumns = []string{
	"address", "list_price", "sold_price", "beds", "baths", "sqft", "dom",
	"status", "photo_url", "year_built", "lot_sqft", "distance_mi",
}

// PostgresWriter publishes report comps into a shared Postgres table.
// Writing a report replaces any rows previously published for it.
type PostgresWriter struct {
	db    *sql.DB
	table string
}

// NewPostgresWriter opens the connection, waits for the server, and creates
// the table if needed.
func NewPostgresWriter(dsn, table string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db, table: pq.QuoteIdentifier(table)}
	if err := pw.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id           SERIAL PRIMARY KEY,
			report_id    TEXT NOT NULL,
			address      TEXT,
			list_price   NUMERIC(14,2),
			sold_price   NUMERIC(14,2),
			beds         NUMERIC(5,1),
			baths        NUMERIC(5,1),
			sqft         NUMERIC(12,2),
			dom          NUMERIC(8,1),
			status       TEXT,
			photo_url    TEXT,
			year_built   NUMERIC(6,0),
			lot_sqft     NUMERIC(14,2),
			distance_mi  NUMERIC(8,3),
			published_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s(report_id);
	`, pw.table, pq.QuoteIdentifier(strings.Trim(pw.table, `"`)+"_report_id_idx")))
	return err
}

func (pw *PostgresWriter) Write(report internal.Report) error {
	tx, err := pw.db.Begin()
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM `+pw.table+` WHERE report_id = $1`, report.ID); err != nil {
		return fmt.Errorf("postgres: clear report %s: %w", report.ID, err)
	}

	for i := 0; i < len(report.Comps); i += insertBatchSize {
		end := i + insertBatchSize
		if end > len(report.Comps) {
			end = len(report.Comps)
		}
		query, args := buildInsert(pw.table, report.ID, report.Comps[i:end])
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("postgres: insert report %s: %w", report.ID, err)
		}
	}
	return tx.Commit()
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

func buildInsert(table, reportID string, batch []internal.Comp) (string, []any) {
	width := len(compColumns) + 1
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*width)

	for idx, comp := range batch {
		placeholders := make([]string, width)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", idx*width+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")

		valueArgs = append(valueArgs, reportID)
		for _, field := range internal.Fields {
			valueArgs = append(valueArgs, comp.Get(field))
		}
	}

	query := fmt.Sprintf(`INSERT INTO %s (report_id, %s) VALUES %s`,
		table, strings.Join(compColumns, ", "), strings.Join(valueStrings, ","))
	return query, valueArgs
}
