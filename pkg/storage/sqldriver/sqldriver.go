// Package sqldriver implements storage.Driver over database/sql. The sqlite
// and postgres drivers embed it and differ only in how they open the
// connection and number their placeholders.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/voicenotes/pkg/audio"
	"github.com/papercomputeco/voicenotes/pkg/memo"
	"github.com/papercomputeco/voicenotes/pkg/storage"
)

// Placeholder selects the bind variable syntax of a SQL dialect.
type Placeholder int

const (
	// Question binds with "?" (SQLite).
	Question Placeholder = iota

	// Dollar binds with "$1", "$2", ... (PostgreSQL).
	Dollar
)

const columns = `id, timestamp_ns, audio_ref, transcript, transcript_status, delta_offset_ns`

const schema = `
CREATE TABLE IF NOT EXISTS memos (
	id TEXT PRIMARY KEY,
	timestamp_ns BIGINT NOT NULL,
	audio_ref TEXT NOT NULL,
	transcript TEXT NOT NULL,
	transcript_status TEXT NOT NULL,
	delta_offset_ns BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_memos_timestamp ON memos(timestamp_ns);
`

// Driver implements storage.Driver on a *sql.DB.
type Driver struct {
	DB          *sql.DB
	placeholder Placeholder
}

// New wraps db and creates the memos table if it doesn't exist.
func New(ctx context.Context, db *sql.DB, placeholder Placeholder) (*Driver, error) {
	d := &Driver{DB: db, placeholder: placeholder}
	if err := d.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return d, nil
}

func (d *Driver) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.DB.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	// Tables created before delta offsets existed lack the column.
	var n int64
	err := d.DB.QueryRowContext(ctx, `SELECT COUNT(delta_offset_ns) FROM memos`).Scan(&n)
	if err == nil {
		return nil
	}
	if _, err := d.DB.ExecContext(ctx, `ALTER TABLE memos ADD COLUMN delta_offset_ns BIGINT NOT NULL DEFAULT 0`); err != nil {
		return fmt.Errorf("adding delta_offset_ns column: %w", err)
	}
	return nil
}

// bind rewrites "?" placeholders for the driver's dialect.
func (d *Driver) bind(query string) string {
	if d.placeholder == Question {
		return query
	}

	var (
		b strings.Builder
		n int
	)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *Driver) InsertOrReplace(ctx context.Context, m *memo.Memo) error {
	if m == nil {
		return errors.New("cannot store nil memo")
	}

	query := d.bind(`
		INSERT INTO memos (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			timestamp_ns = excluded.timestamp_ns,
			audio_ref = excluded.audio_ref,
			transcript = excluded.transcript,
			transcript_status = excluded.transcript_status,
			delta_offset_ns = excluded.delta_offset_ns`)

	_, err := d.DB.ExecContext(ctx, query,
		m.ID,
		m.Timestamp.UnixNano(),
		string(m.AudioRef),
		m.Transcript,
		string(m.Status),
		int64(m.DeltaOffset),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert memo: %w", err)
	}
	return nil
}

func (d *Driver) Get(ctx context.Context, id string) (*memo.Memo, error) {
	query := d.bind(`SELECT ` + columns + ` FROM memos WHERE id = ?`)

	m, err := scanMemo(d.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan memo: %w", err)
	}
	return m, nil
}

func (d *Driver) List(ctx context.Context) ([]*memo.Memo, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT ` + columns + ` FROM memos`)
	if err != nil {
		return nil, fmt.Errorf("failed to query memos: %w", err)
	}
	defer rows.Close()

	var memos []*memo.Memo
	for rows.Next() {
		m, err := scanMemo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memo: %w", err)
		}
		memos = append(memos, m)
	}
	return memos, rows.Err()
}

func (d *Driver) Remove(ctx context.Context, id string) (*memo.Memo, error) {
	query := d.bind(`DELETE FROM memos WHERE id = ? RETURNING ` + columns)

	m, err := scanMemo(d.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete memo: %w", err)
	}
	return m, nil
}

func (d *Driver) Close() error {
	return d.DB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemo(row scanner) (*memo.Memo, error) {
	var (
		m      memo.Memo
		ns     int64
		ref    string
		status string
		delta  int64
	)
	if err := row.Scan(&m.ID, &ns, &ref, &m.Transcript, &status, &delta); err != nil {
		return nil, err
	}
	m.Timestamp = time.Unix(0, ns).UTC()
	m.AudioRef = audio.Ref(ref)
	m.Status = memo.Status(status)
	m.DeltaOffset = time.Duration(delta)
	return &m, nil
}
