package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const (
	recordColumns = `id, file_name, full_path, created_at, modified_at,
		is_uploaded, is_deleted, remote_id, uploaded_at, version`

	sqlInsertRecord = `INSERT INTO records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlInsertLog = `INSERT INTO record_logs (id, record_id, date, message, is_error)
		VALUES (?, ?, ?, ?, ?)`

	sqlGetRecord = `SELECT ` + recordColumns + ` FROM records WHERE id = ?`

	sqlListRecords = `SELECT ` + recordColumns + ` FROM records`

	sqlUpdateRecord = `UPDATE records SET
		file_name = ?, full_path = ?, modified_at = ?, is_uploaded = ?,
		is_deleted = ?, remote_id = ?, uploaded_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND is_uploaded = 0 AND is_deleted = 0`

	sqlRecordStatus = `SELECT version, is_uploaded, is_deleted FROM records WHERE id = ?`

	sqlListLogs = `SELECT id, record_id, date, message, is_error
		FROM record_logs WHERE record_id = ? ORDER BY date, rowid`

	sqlCounts = `SELECT
		COALESCE(SUM(CASE WHEN is_uploaded = 0 AND is_deleted = 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(is_uploaded), 0),
		COALESCE(SUM(is_deleted), 0)
		FROM records`
)

var stateWhere = map[State]string{
	StatePending:  "(is_uploaded = 0 AND is_deleted = 0)",
	StateUploaded: "is_uploaded = 1",
	StateDeleted:  "is_deleted = 1",
}

// Counts is the number of records per state.
type Counts struct {
	Pending  int `json:"pending"`
	Uploaded int `json:"uploaded"`
	Deleted  int `json:"deleted"`
}

// Store persists records in SQLite. Every method is a single transaction.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the ledger database at dbPath and applies
// migrations. The database uses WAL mode with synchronous=FULL.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("ledger opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("ledger: closing database: %w", err)
	}

	return nil
}

// Create inserts a new record together with any logs already added to it.
func (s *Store) Create(ctx context.Context, r *Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: beginning create: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, sqlInsertRecord,
		r.ID.String(), r.FileName, r.FullPath,
		r.CreatedAt.UnixNano(), r.ModifiedAt.UnixNano(),
		r.IsUploaded, r.IsDeleted, nullString(r.RemoteID), nullTime(r.UploadedAt),
		r.Version,
	); err != nil {
		return fmt.Errorf("ledger: inserting record %s: %w", r.ID, err)
	}

	if err := insertLogs(ctx, tx, r.unsaved); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: committing create: %w", err)
	}

	r.markSaved()

	s.logger.Debug("record created",
		slog.String("id", r.ID.String()),
		slog.String("file", r.FileName),
	)

	return nil
}

// Get loads a record and its logs.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, sqlGetRecord, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger: %s: %w", id, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("ledger: loading record %s: %w", id, err)
	}

	logs, err := s.Logs(ctx, id)
	if err != nil {
		return nil, err
	}

	r.Logs = logs

	return r, nil
}

// List returns records in any of the given states, oldest first. With no
// states every record is returned. Logs are not loaded.
func (s *Store) List(ctx context.Context, states ...State) ([]*Record, error) {
	query := sqlListRecords

	if len(states) > 0 {
		clauses := make([]string, 0, len(states))

		for _, st := range states {
			clause, ok := stateWhere[st]
			if !ok {
				return nil, fmt.Errorf("ledger: unknown state %q", st)
			}

			clauses = append(clauses, clause)
		}

		query += " WHERE " + strings.Join(clauses, " OR ")
	}

	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ledger: listing records: %w", err)
	}
	defer rows.Close()

	var out []*Record

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scanning record: %w", err)
		}

		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterating records: %w", err)
	}

	return out, nil
}

// Update writes a pending record's changes and unsaved logs. The row must
// still be pending at the record's version: a terminal row returns
// ErrTerminal, a version mismatch ErrConflict, a missing row ErrNotFound.
func (s *Store) Update(ctx context.Context, r *Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: beginning update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, sqlUpdateRecord,
		r.FileName, r.FullPath, r.ModifiedAt.UnixNano(), r.IsUploaded,
		r.IsDeleted, nullString(r.RemoteID), nullTime(r.UploadedAt),
		r.ID.String(), r.Version,
	)
	if err != nil {
		return fmt.Errorf("ledger: updating record %s: %w", r.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: checking update of %s: %w", r.ID, err)
	}

	if n == 0 {
		return s.explainMiss(ctx, tx, r.ID)
	}

	if err := insertLogs(ctx, tx, r.unsaved); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: committing update: %w", err)
	}

	r.Version++
	r.markSaved()

	return nil
}

// explainMiss classifies an update that matched no row.
func (s *Store) explainMiss(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	var (
		version           int64
		uploaded, deleted bool
	)

	err := tx.QueryRowContext(ctx, sqlRecordStatus, id.String()).Scan(&version, &uploaded, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ledger: %s: %w", id, ErrNotFound)
	}

	if err != nil {
		return fmt.Errorf("ledger: reading status of %s: %w", id, err)
	}

	if uploaded || deleted {
		return fmt.Errorf("ledger: %s: %w", id, ErrTerminal)
	}

	return fmt.Errorf("ledger: %s at version %d: %w", id, version, ErrConflict)
}

// Logs returns the audit log of a record in order.
func (s *Store) Logs(ctx context.Context, id uuid.UUID) ([]RecordLog, error) {
	rows, err := s.db.QueryContext(ctx, sqlListLogs, id.String())
	if err != nil {
		return nil, fmt.Errorf("ledger: listing logs for %s: %w", id, err)
	}
	defer rows.Close()

	var out []RecordLog

	for rows.Next() {
		var (
			l            RecordLog
			logID, recID string
			date         int64
		)

		if err := rows.Scan(&logID, &recID, &date, &l.Message, &l.IsError); err != nil {
			return nil, fmt.Errorf("ledger: scanning log: %w", err)
		}

		if l.ID, err = uuid.Parse(logID); err != nil {
			return nil, fmt.Errorf("ledger: parsing log id %q: %w", logID, err)
		}

		if l.RecordID, err = uuid.Parse(recID); err != nil {
			return nil, fmt.Errorf("ledger: parsing record id %q: %w", recID, err)
		}

		l.Date = time.Unix(0, date)
		out = append(out, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterating logs: %w", err)
	}

	return out, nil
}

// Counts returns the number of records per state.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts

	if err := s.db.QueryRowContext(ctx, sqlCounts).Scan(&c.Pending, &c.Uploaded, &c.Deleted); err != nil {
		return Counts{}, fmt.Errorf("ledger: counting records: %w", err)
	}

	return c, nil
}

func insertLogs(ctx context.Context, tx *sql.Tx, logs []RecordLog) error {
	for _, l := range logs {
		if _, err := tx.ExecContext(ctx, sqlInsertLog,
			l.ID.String(), l.RecordID.String(), l.Date.UnixNano(), l.Message, l.IsError,
		); err != nil {
			return fmt.Errorf("ledger: inserting log for %s: %w", l.RecordID, err)
		}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		r                     Record
		id                    string
		createdAt, modifiedAt int64
		remoteID              sql.NullString
		uploadedAt            sql.NullInt64
	)

	if err := row.Scan(&id, &r.FileName, &r.FullPath, &createdAt, &modifiedAt,
		&r.IsUploaded, &r.IsDeleted, &remoteID, &uploadedAt, &r.Version); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parsing record id %q: %w", id, err)
	}

	r.ID = parsed
	r.CreatedAt = time.Unix(0, createdAt)
	r.ModifiedAt = time.Unix(0, modifiedAt)
	r.RemoteID = remoteID.String

	if uploadedAt.Valid {
		t := time.Unix(0, uploadedAt.Int64)
		r.UploadedAt = &t
	}

	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
