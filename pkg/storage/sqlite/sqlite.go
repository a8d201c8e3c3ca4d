// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/voicenotes/pkg/storage/sqldriver"
)

// Driver implements storage.Driver using SQLite.
type Driver struct {
	*sqldriver.Driver
}

// NewDriver opens the database at dbPath, which can be a file path or
// ":memory:" for an in-memory database.
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A ":memory:" database is private to one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	drv, err := sqldriver.New(ctx, db, sqldriver.Question)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Driver{Driver: drv}, nil
}
