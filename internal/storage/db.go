package storage

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"dentsync/internal"
	"dentsync/internal/config"
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
CREATE TABLE IF NOT EXISTS properties (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  sessionId TEXT NOT NULL,
  domain TEXT NOT NULL,
  spreadsheetId TEXT NOT NULL,
  status TEXT NOT NULL,
  inspected INTEGER NOT NULL DEFAULT 0,
  added INTEGER NOT NULL DEFAULT 0,
  skipped INTEGER NOT NULL DEFAULT 0,
  errored INTEGER NOT NULL DEFAULT 0,
  durationMs INTEGER NOT NULL DEFAULT 0,
  errorText TEXT,
  startedAt TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_startedAt ON runs(startedAt);
`
	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) SetProperty(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO properties (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetProperty(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM properties WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *DB) ListProperties(prefix string) (map[string]string, error) {
	rows, err := d.conn.Query(`SELECT key, value FROM properties WHERE key LIKE ? ORDER BY key`, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// LoadCredentials merges env defaults with the property store, store values
// winning. Clinic ids live under "clinic.<location>", e.g. "clinic.BAYTOWN".
func (d *DB) LoadCredentials(cfg config.Config) (internal.Credentials, error) {
	creds := internal.Credentials{
		BaseURL:             cfg.DashboardBaseURL,
		APIKey:              cfg.DashboardAPIKey,
		DefaultDataSourceID: cfg.DefaultDataSource,
		ClinicIDs:           map[string]string{},
	}

	if v, err := d.GetProperty("api.base_url"); err != nil {
		return creds, err
	} else if v != nil {
		creds.BaseURL = *v
	}
	if v, err := d.GetProperty("api.key"); err != nil {
		return creds, err
	} else if v != nil {
		creds.APIKey = *v
	}
	if v, err := d.GetProperty("api.data_source_id"); err != nil {
		return creds, err
	} else if v != nil {
		creds.DefaultDataSourceID = *v
	}

	clinics, err := d.ListProperties("clinic.")
	if err != nil {
		return creds, err
	}
	for key, value := range clinics {
		location := strings.TrimPrefix(key, "clinic.")
		if location != "" && strings.TrimSpace(value) != "" {
			creds.ClinicIDs[location] = value
		}
	}

	return creds, nil
}

func (d *DB) InsertRun(summary internal.RunSummary) error {
	_, err := d.conn.Exec(`
INSERT INTO runs (sessionId, domain, spreadsheetId, status, inspected, added, skipped, errored, durationMs, errorText, startedAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		summary.SessionID,
		summary.Domain,
		summary.SpreadsheetID,
		string(summary.Status),
		summary.Inspected,
		summary.Added,
		summary.Skipped,
		summary.Errored,
		summary.Duration.Milliseconds(),
		summary.ErrorText,
		summary.StartedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	)
	return err
}

type RunRow struct {
	SessionID  string
	Domain     string
	Status     string
	Inspected  int
	Added      int
	Skipped    int
	Errored    int
	DurationMs int64
	StartedAt  string
	ErrorText  string
}

func (d *DB) RecentRuns(limit int) ([]RunRow, error) {
	rows, err := d.conn.Query(`
SELECT sessionId, domain, status, inspected, added, skipped, errored, durationMs, startedAt, COALESCE(errorText, '')
FROM runs ORDER BY id DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var row RunRow
		if err := rows.Scan(&row.SessionID, &row.Domain, &row.Status, &row.Inspected, &row.Added, &row.Skipped, &row.Errored, &row.DurationMs, &row.StartedAt, &row.ErrorText); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
