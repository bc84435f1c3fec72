package persistence

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/ASHISH26940/globby/internal/store"
)

// SQLiteCodec writes the snapshot as one table in a standalone sqlite file.
type SQLiteCodec struct{}

func (SQLiteCodec) Name() string      { return "sqlite" }
func (SQLiteCodec) Extension() string { return ".sqlite" }

const sqliteSchema = `
	CREATE TABLE rooms (
		key TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		data BLOB NOT NULL
	);`

func (SQLiteCodec) WriteFile(path string, snap store.Snapshot) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	if err := writeSQLite(db, snap); err != nil {
		db.Close()
		return err
	}
	return db.Close()
}

func writeSQLite(db *sql.DB, snap store.Snapshot) error {
	// Rollback journal with full sync so the file is complete once Close
	// returns and the manager renames it.
	for _, pragma := range []string{"PRAGMA journal_mode=DELETE", "PRAGMA synchronous=FULL"} {
		if _, err := db.Exec(pragma); err != nil {
			return err
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO rooms (key, version, data) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for key, rec := range snap {
		if _, err := stmt.Exec(key, int64(rec.Version), []byte(rec.Data)); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (SQLiteCodec) ReadFile(path string) (store.Snapshot, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query("SELECT key, version, data FROM rooms")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := store.Snapshot{}
	for rows.Next() {
		var (
			key     string
			version int64
			data    []byte
		)
		if err := rows.Scan(&key, &version, &data); err != nil {
			return nil, err
		}
		snap[key] = store.Record{Version: uint64(version), Data: data}
	}
	return snap, rows.Err()
}
