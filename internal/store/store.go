// Package store persists one record per processed frame in SQLite.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite" // Register the "sqlite" database/sql driver
)

// Record statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("record not found")

// Record is one processed frame.
//
// A failed analysis has Status "failed", a non-empty Error and nil Percentage and
// AnnotatedFilename. A successful analysis with no particles stores a zero
// Percentage, never nil.
type Record struct {
	ID                int64     `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	OriginalFilename  string    `json:"original_filename"`
	AnnotatedFilename *string   `json:"detected_filename"`
	Percentage        *float64  `json:"percentage"`
	Status            string    `json:"status"`
	Error             string    `json:"error,omitempty"`
}

var schema = []string{`
CREATE TABLE IF NOT EXISTS analyses (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp         TEXT    NOT NULL,
	original_filename TEXT    NOT NULL,
	detected_filename TEXT,
	percentage        REAL,
	status            TEXT    NOT NULL,
	error             TEXT    NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_original_filename ON analyses(original_filename)`,
}

// Store is a SQLite-backed record log. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "connect to database %s", path)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "apply schema")
		}
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert appends rec and fills in its ID. A zero Timestamp is set to now and an
// empty Status is derived from whether Percentage is set.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if rec.OriginalFilename == "" {
		return errors.New("original filename is required")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = StatusOK
		if rec.Percentage == nil {
			rec.Status = StatusFailed
		}
	}
	if rec.Status == StatusFailed && rec.Percentage != nil {
		return errors.New("failed record must not carry a percentage")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (timestamp, original_filename, detected_filename, percentage, status, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.OriginalFilename,
		nullString(rec.AnnotatedFilename),
		nullFloat(rec.Percentage),
		rec.Status,
		rec.Error,
	)
	if err != nil {
		return errors.Wrapf(err, "insert record for %s", rec.OriginalFilename)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "read inserted id")
	}
	rec.ID = id
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, original_filename, detected_filename, percentage, status, error
		 FROM analyses ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query recent records")
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate records")
	}
	return records, nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp, original_filename, detected_filename, percentage, status, error
		 FROM analyses WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

// FindByOriginal returns the newest record for an original filename, or ErrNotFound.
func (s *Store) FindByOriginal(ctx context.Context, filename string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp, original_filename, detected_filename, percentage, status, error
		 FROM analyses WHERE original_filename = ? ORDER BY id DESC LIMIT 1`, filename)

	rec, err := scanRecord(row)
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec       Record
		ts        string
		annotated sql.NullString
		pct       sql.NullFloat64
	)
	if err := sc.Scan(&rec.ID, &ts, &rec.OriginalFilename, &annotated, &pct, &rec.Status, &rec.Error); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan record")
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, errors.Wrapf(err, "parse timestamp of record %d", rec.ID)
	}
	rec.Timestamp = t

	if annotated.Valid {
		rec.AnnotatedFilename = &annotated.String
	}
	if pct.Valid {
		rec.Percentage = &pct.Float64
	}
	return &rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
