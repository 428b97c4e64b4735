package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"dashnorm/internal"
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
CREATE TABLE IF NOT EXISTS datasets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  inputType TEXT NOT NULL,
  hash TEXT NOT NULL,
  rowCount INTEGER NOT NULL,
  loadedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS derived_tables (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  datasetId INTEGER NOT NULL,
  preset TEXT NOT NULL,
  version TEXT NOT NULL,
  identityFields TEXT NOT NULL,
  attributeFields TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(datasetId, preset),
  FOREIGN KEY(datasetId) REFERENCES datasets(id)
);

CREATE TABLE IF NOT EXISTS sub_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  derivedId INTEGER NOT NULL,
  seq INTEGER NOT NULL,
  parentRow INTEGER NOT NULL,
  idx TEXT NOT NULL,
  identityJson TEXT NOT NULL,
  attributesJson TEXT NOT NULL,
  UNIQUE(derivedId, seq),
  FOREIGN KEY(derivedId) REFERENCES derived_tables(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_sub_records_parent ON sub_records(derivedId, parentRow);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  datasetId INTEGER,
  preset TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(datasetId) REFERENCES datasets(id)
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

func (d *DB) UpsertDataset(name, inputType, hash string, rows int) (internal.DatasetRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO datasets (name, inputType, hash, rowCount)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
  inputType=excluded.inputType,
  hash=excluded.hash,
  rowCount=excluded.rowCount,
  loadedAt=CURRENT_TIMESTAMP
`, name, inputType, hash, rows)
	if err != nil {
		return internal.DatasetRow{}, err
	}

	row, err := d.GetDatasetByName(name)
	if err != nil {
		return internal.DatasetRow{}, err
	}
	if row == nil {
		return internal.DatasetRow{}, errors.New("failed to upsert dataset")
	}
	return *row, nil
}

func (d *DB) GetDatasetByName(name string) (*internal.DatasetRow, error) {
	return d.scanDataset(d.conn.QueryRow(`
SELECT id, name, inputType, hash, rowCount, loadedAt FROM datasets WHERE name = ?
`, name))
}

func (d *DB) GetDatasetByID(id int) (*internal.DatasetRow, error) {
	return d.scanDataset(d.conn.QueryRow(`
SELECT id, name, inputType, hash, rowCount, loadedAt FROM datasets WHERE id = ?
`, id))
}

func (d *DB) scanDataset(row *sql.Row) (*internal.DatasetRow, error) {
	var ds internal.DatasetRow
	err := row.Scan(&ds.ID, &ds.Name, &ds.InputType, &ds.Hash, &ds.Rows, &ds.LoadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

func (d *DB) ListDatasets() ([]internal.DatasetRow, error) {
	rows, err := d.conn.Query(`SELECT id, name, inputType, hash, rowCount, loadedAt FROM datasets ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.DatasetRow
	for rows.Next() {
		var ds internal.DatasetRow
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.InputType, &ds.Hash, &ds.Rows, &ds.LoadedAt); err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// ReplaceSubRecords swaps the stored derived table of (dataset, preset) for table.
// Sub-records have no identity beyond their parent, so the old set is dropped whole.
func (d *DB) ReplaceSubRecords(datasetID int, preset, version string, table internal.SubRecordTable) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	identityJSON, err := json.Marshal(table.IdentityFields)
	if err != nil {
		return err
	}
	attributeJSON, err := json.Marshal(table.AttributeFields)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`
DELETE FROM sub_records WHERE derivedId IN (SELECT id FROM derived_tables WHERE datasetId = ? AND preset = ?)
`, datasetID, preset); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM derived_tables WHERE datasetId = ? AND preset = ?`, datasetID, preset); err != nil {
		return err
	}
	res, err := tx.Exec(`
INSERT INTO derived_tables (datasetId, preset, version, identityFields, attributeFields)
VALUES (?, ?, ?, ?, ?)
`, datasetID, preset, version, string(identityJSON), string(attributeJSON))
	if err != nil {
		return err
	}
	derivedID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO sub_records (derivedId, seq, parentRow, idx, identityJson, attributesJson)
VALUES (?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for seq, rec := range table.Records {
		idJSON, err := json.Marshal(rec.Identity)
		if err != nil {
			return err
		}
		attrJSON, err := json.Marshal(rec.Attributes)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(derivedID, seq, rec.ParentRow, rec.Index, string(idJSON), string(attrJSON)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetSubRecords loads a stored derived table in its original order. The second
// return value is the version token it was stored under.
func (d *DB) GetSubRecords(datasetID int, preset string) (*internal.SubRecordTable, string, error) {
	var derivedID int
	var version, identityJSON, attributeJSON string
	err := d.conn.QueryRow(`
SELECT id, version, identityFields, attributeFields FROM derived_tables WHERE datasetId = ? AND preset = ?
`, datasetID, preset).Scan(&derivedID, &version, &identityJSON, &attributeJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	table := &internal.SubRecordTable{Records: []internal.SubRecord{}}
	if err := json.Unmarshal([]byte(identityJSON), &table.IdentityFields); err != nil {
		return nil, "", fmt.Errorf("decode identity fields: %w", err)
	}
	if err := json.Unmarshal([]byte(attributeJSON), &table.AttributeFields); err != nil {
		return nil, "", fmt.Errorf("decode attribute fields: %w", err)
	}

	rows, err := d.conn.Query(`
SELECT parentRow, idx, identityJson, attributesJson FROM sub_records WHERE derivedId = ? ORDER BY seq ASC
`, derivedID)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	for rows.Next() {
		var rec internal.SubRecord
		var idJSON, attrJSON string
		if err := rows.Scan(&rec.ParentRow, &rec.Index, &idJSON, &attrJSON); err != nil {
			return nil, "", err
		}
		if err := json.Unmarshal([]byte(idJSON), &rec.Identity); err != nil {
			return nil, "", err
		}
		if err := json.Unmarshal([]byte(attrJSON), &rec.Attributes); err != nil {
			return nil, "", err
		}
		table.Records = append(table.Records, rec)
	}
	return table, version, rows.Err()
}

// GetDerivedVersion returns the version token of the stored derived table, or "" when none is stored.
func (d *DB) GetDerivedVersion(datasetID int, preset string) (string, error) {
	var version string
	err := d.conn.QueryRow(`SELECT version FROM derived_tables WHERE datasetId = ? AND preset = ?`, datasetID, preset).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return version, err
}

func (d *DB) InsertRun(traceID string, datasetID int, preset string, timings map[string]float64, counts map[string]int) error {
	timingsJSON, err := json.Marshal(timings)
	if err != nil {
		return err
	}
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	_, err = d.conn.Exec(`INSERT INTO runs (traceId, datasetId, preset, timingsJson, countsJson) VALUES (?, ?, ?, ?, ?)`, traceID, datasetID, preset, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) ListRuns(limit int) ([]internal.RunRow, error) {
	rows, err := d.conn.Query(`
SELECT id, traceId, COALESCE(datasetId, 0), preset, timingsJson, countsJson, createdAt
FROM runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRow
	for rows.Next() {
		var run internal.RunRow
		var timingsJSON, countsJSON string
		if err := rows.Scan(&run.ID, &run.TraceID, &run.DatasetID, &run.Preset, &timingsJSON, &countsJSON, &run.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(timingsJSON), &run.Timings); err != nil {
			return nil, fmt.Errorf("decode timings of run %d: %w", run.ID, err)
		}
		if err := json.Unmarshal([]byte(countsJSON), &run.Counts); err != nil {
			return nil, fmt.Errorf("decode counts of run %d: %w", run.ID, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
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

func (d *DB) MustDatasetByName(name string) (internal.DatasetRow, error) {
	row, err := d.GetDatasetByName(name)
	if err != nil {
		return internal.DatasetRow{}, err
	}
	if row == nil {
		return internal.DatasetRow{}, fmt.Errorf("dataset not found: %s", name)
	}
	return *row, nil
}
