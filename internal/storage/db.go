package storage

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"compsheet/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS uploads (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  sourceName TEXT NOT NULL,
  source TEXT NOT NULL,
  sheet TEXT NOT NULL DEFAULT '',
  headersJson TEXT NOT NULL,
  rowCount INTEGER NOT NULL,
  emailId INTEGER,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);
CREATE INDEX IF NOT EXISTS idx_uploads_emailId ON uploads(emailId);

CREATE TABLE IF NOT EXISTS upload_rows (
  uploadId INTEGER NOT NULL,
  rowNo INTEGER NOT NULL,
  rowJson TEXT NOT NULL,
  PRIMARY KEY(uploadId, rowNo),
  FOREIGN KEY(uploadId) REFERENCES uploads(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS mappings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  uploadId INTEGER NOT NULL,
  origin TEXT NOT NULL,
  mappingJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(uploadId) REFERENCES uploads(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_mappings_uploadId ON mappings(uploadId);

CREATE TABLE IF NOT EXISTS reports (
  id TEXT PRIMARY KEY,
  uploadId INTEGER NOT NULL,
  mappingId INTEGER NOT NULL,
  title TEXT NOT NULL,
  shareToken TEXT NOT NULL UNIQUE,
  compsJson TEXT NOT NULL,
  statsJson TEXT NOT NULL,
  dropped INTEGER NOT NULL DEFAULT 0,
  createdAt TEXT NOT NULL,
  expiresAt TEXT,
  FOREIGN KEY(uploadId) REFERENCES uploads(id) ON DELETE CASCADE,
  FOREIGN KEY(mappingId) REFERENCES mappings(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_reports_uploadId ON reports(uploadId);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  emailId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// InsertUpload stores a table and its raw rows in one transaction.
func (d *DB) InsertUpload(t internal.Table, emailID *int) (int64, error) {
	headersJSON, err := json.Marshal(t.Headers)
	if err != nil {
		return 0, err
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.Exec(`
INSERT INTO uploads (sourceName, source, sheet, headersJson, rowCount, emailId)
VALUES (?, ?, ?, ?, ?, ?)
`, t.Name, string(t.Source), t.Sheet, string(headersJSON), len(t.Rows), emailID)
	if err != nil {
		return 0, err
	}
	uploadID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`INSERT INTO upload_rows (uploadId, rowNo, rowJson) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, row := range t.Rows {
		rowJSON, err := json.Marshal(row)
		if err != nil {
			return 0, fmt.Errorf("row %d: %w", i+1, err)
		}
		if _, err := stmt.Exec(uploadID, i+1, string(rowJSON)); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return uploadID, nil
}

const uploadColumns = `id, sourceName, source, sheet, headersJson, rowCount, emailId, createdAt`

func scanUpload(scan func(...any) error) (internal.UploadRow, error) {
	var row internal.UploadRow
	var source, headersJSON string
	if err := scan(&row.ID, &row.SourceName, &source, &row.Sheet, &headersJSON, &row.RowCount, &row.EmailID, &row.CreatedAt); err != nil {
		return internal.UploadRow{}, err
	}
	row.Source = internal.TableSource(source)
	if err := json.Unmarshal([]byte(headersJSON), &row.Headers); err != nil {
		return internal.UploadRow{}, fmt.Errorf("upload %d headers: %w", row.ID, err)
	}
	return row, nil
}

func (d *DB) GetUpload(id int64) (*internal.UploadRow, error) {
	row, err := scanUpload(d.conn.QueryRow(`SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustUpload(id int64) (internal.UploadRow, error) {
	row, err := d.GetUpload(id)
	if err != nil {
		return internal.UploadRow{}, err
	}
	if row == nil {
		return internal.UploadRow{}, fmt.Errorf("upload not found: id=%d", id)
	}
	return *row, nil
}

func (d *DB) ListUploads(limit int) ([]internal.UploadRow, error) {
	return d.queryUploads(`SELECT `+uploadColumns+` FROM uploads ORDER BY id DESC LIMIT ?`, limit)
}

func (d *DB) ListUploadsByEmail(emailID int) ([]internal.UploadRow, error) {
	return d.queryUploads(`SELECT `+uploadColumns+` FROM uploads WHERE emailId = ? ORDER BY id ASC`, emailID)
}

func (d *DB) queryUploads(query string, args ...any) ([]internal.UploadRow, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.UploadRow
	for rows.Next() {
		row, err := scanUpload(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// UploadTable rebuilds the stored table. Numbers in row JSON come back as
// json.Number so no precision is lost before coercion.
func (d *DB) UploadTable(id int64) (internal.Table, error) {
	upload, err := d.MustUpload(id)
	if err != nil {
		return internal.Table{}, err
	}

	rows, err := d.conn.Query(`SELECT rowJson FROM upload_rows WHERE uploadId = ? ORDER BY rowNo ASC`, id)
	if err != nil {
		return internal.Table{}, err
	}
	defer rows.Close()

	table := internal.Table{
		Name:    upload.SourceName,
		Source:  upload.Source,
		Sheet:   upload.Sheet,
		Headers: upload.Headers,
		Rows:    make([]map[string]any, 0, upload.RowCount),
	}
	for rows.Next() {
		var rowJSON string
		if err := rows.Scan(&rowJSON); err != nil {
			return internal.Table{}, err
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(rowJSON)))
		dec.UseNumber()
		row := map[string]any{}
		if err := dec.Decode(&row); err != nil {
			return internal.Table{}, fmt.Errorf("upload %d row: %w", id, err)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, rows.Err()
}

func (d *DB) InsertMapping(uploadID int64, origin internal.MappingOrigin, m internal.HeaderMapping) (int64, error) {
	if m == nil {
		m = internal.HeaderMapping{}
	}
	mappingJSON, err := json.Marshal(m)
	if err != nil {
		return 0, err
	}
	result, err := d.conn.Exec(`INSERT INTO mappings (uploadId, origin, mappingJson) VALUES (?, ?, ?)`, uploadID, string(origin), string(mappingJSON))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// LatestMapping returns the newest mapping stored for an upload, edited or
// suggested.
func (d *DB) LatestMapping(uploadID int64) (*internal.MappingRow, error) {
	var row internal.MappingRow
	var origin, mappingJSON string
	err := d.conn.QueryRow(`
SELECT id, uploadId, origin, mappingJson, createdAt
FROM mappings WHERE uploadId = ? ORDER BY id DESC LIMIT 1
`, uploadID).Scan(&row.ID, &row.UploadID, &origin, &mappingJSON, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	row.Origin = internal.MappingOrigin(origin)
	if err := json.Unmarshal([]byte(mappingJSON), &row.Mapping); err != nil {
		return nil, fmt.Errorf("mapping %d: %w", row.ID, err)
	}
	return &row, nil
}

func (d *DB) InsertReport(r internal.Report) error {
	compsJSON, err := json.Marshal(r.Comps)
	if err != nil {
		return err
	}
	statsJSON, err := json.Marshal(r.Stats)
	if err != nil {
		return err
	}
	var expiresAt *string
	if r.ExpiresAt != nil {
		v := r.ExpiresAt.UTC().Format(time.RFC3339)
		expiresAt = &v
	}

	_, err = d.conn.Exec(`
INSERT INTO reports (id, uploadId, mappingId, title, shareToken, compsJson, statsJson, dropped, createdAt, expiresAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, r.ID, r.UploadID, r.MappingID, r.Title, r.ShareToken, string(compsJSON), string(statsJSON), r.Dropped, r.CreatedAt.UTC().Format(time.RFC3339), expiresAt)
	return err
}

const reportColumns = `id, uploadId, mappingId, title, shareToken, compsJson, statsJson, dropped, createdAt, expiresAt`

func scanReport(scan func(...any) error) (internal.Report, error) {
	var r internal.Report
	var compsJSON, statsJSON, createdAt string
	var expiresAt sql.NullString
	if err := scan(&r.ID, &r.UploadID, &r.MappingID, &r.Title, &r.ShareToken, &compsJSON, &statsJSON, &r.Dropped, &createdAt, &expiresAt); err != nil {
		return internal.Report{}, err
	}
	if err := json.Unmarshal([]byte(compsJSON), &r.Comps); err != nil {
		return internal.Report{}, fmt.Errorf("report %s comps: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &r.Stats); err != nil {
		return internal.Report{}, fmt.Errorf("report %s stats: %w", r.ID, err)
	}
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return internal.Report{}, fmt.Errorf("report %s createdAt: %w", r.ID, err)
	}
	r.CreatedAt = created
	if expiresAt.Valid {
		exp, err := time.Parse(time.RFC3339, expiresAt.String)
		if err != nil {
			return internal.Report{}, fmt.Errorf("report %s expiresAt: %w", r.ID, err)
		}
		r.ExpiresAt = &exp
	}
	return r, nil
}

func (d *DB) getReport(where string, arg any) (*internal.Report, error) {
	r, err := scanReport(d.conn.QueryRow(`SELECT `+reportColumns+` FROM reports WHERE `+where+` = ?`, arg).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DB) GetReport(id string) (*internal.Report, error) {
	return d.getReport("id", id)
}

func (d *DB) GetReportByShareToken(token string) (*internal.Report, error) {
	return d.getReport("shareToken", token)
}

func (d *DB) MustReport(id string) (internal.Report, error) {
	r, err := d.GetReport(id)
	if err != nil {
		return internal.Report{}, err
	}
	if r == nil {
		return internal.Report{}, fmt.Errorf("report not found: id=%s", id)
	}
	return *r, nil
}

func (d *DB) ListReports(limit int) ([]internal.Report, error) {
	return d.queryReports(`SELECT `+reportColumns+` FROM reports ORDER BY createdAt DESC, id ASC LIMIT ?`, limit)
}

func (d *DB) ListReportsByEmail(emailID int) ([]internal.Report, error) {
	return d.queryReports(`
SELECT r.id, r.uploadId, r.mappingId, r.title, r.shareToken, r.compsJson, r.statsJson, r.dropped, r.createdAt, r.expiresAt
FROM reports r JOIN uploads u ON u.id = r.uploadId
WHERE u.emailId = ? ORDER BY u.id ASC
`, emailID)
}

func (d *DB) queryReports(query string, args ...any) ([]internal.Report, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Report
	for rows.Next() {
		r, err := scanReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

const emailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef`

func scanEmail(scan func(...any) error) (internal.EmailRow, error) {
	var row internal.EmailRow
	err := scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef)
	return row, err
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

// ClearEmailUploads removes uploads, mappings and reports produced from an
// e-mail so it can be processed again.
func (d *DB) ClearEmailUploads(emailID int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM reports WHERE uploadId IN (SELECT id FROM uploads WHERE emailId = ?)`,
		`DELETE FROM mappings WHERE uploadId IN (SELECT id FROM uploads WHERE emailId = ?)`,
		`DELETE FROM upload_rows WHERE uploadId IN (SELECT id FROM uploads WHERE emailId = ?)`,
		`DELETE FROM uploads WHERE emailId = ?`,
	} {
		if _, err := tx.Exec(q, emailID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) InsertRun(traceID string, emailID *int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, emailId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, emailID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}
