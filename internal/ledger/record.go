// Package ledger is the durable record of discovered files and their upload
// lifecycle, with an append-only audit log per record.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maidastach/guardian/internal/failure"
)

// Sentinel errors.
var (
	// ErrTerminal is returned when mutating a record that is already
	// uploaded or deleted.
	ErrTerminal = fmt.Errorf("record is already uploaded or deleted: %w", failure.ErrInvalidAction)

	// ErrConflict is returned by Update when the stored version differs from
	// the record's version.
	ErrConflict = errors.New("record was modified concurrently")

	// ErrNotFound is returned for an unknown record ID.
	ErrNotFound = fmt.Errorf("record: %w", failure.ErrNotFound)
)

// State is the derived lifecycle state of a record.
type State string

// Record states.
const (
	StatePending  State = "pending"
	StateUploaded State = "uploaded"
	StateDeleted  State = "deleted"
)

// ParseState validates a state name.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StatePending, StateUploaded, StateDeleted:
		return State(s), nil
	default:
		return "", fmt.Errorf("ledger: unknown state %q (want pending, uploaded, or deleted)", s)
	}
}

// Record is one discovered file. It moves from pending to exactly one of
// uploaded or deleted and is never revisited afterwards.
type Record struct {
	ID         uuid.UUID  `json:"id"`
	FileName   string     `json:"file_name"`
	FullPath   string     `json:"full_path"`
	CreatedAt  time.Time  `json:"created_at"`
	ModifiedAt time.Time  `json:"modified_at"`
	IsUploaded bool       `json:"is_uploaded"`
	IsDeleted  bool       `json:"is_deleted"`
	RemoteID   string     `json:"remote_id,omitempty"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
	Version    int64      `json:"version"`

	// Logs holds entries loaded from the store. Entries added since the last
	// save live in unsaved until Update persists them.
	Logs    []RecordLog `json:"logs,omitempty"`
	unsaved []RecordLog
}

// RecordLog is an immutable audit entry.
type RecordLog struct {
	ID       uuid.UUID `json:"id"`
	RecordID uuid.UUID `json:"record_id"`
	Date     time.Time `json:"date"`
	Message  string    `json:"message"`
	IsError  bool      `json:"is_error"`
}

// NewRecord creates a pending record for a file.
func NewRecord(fileName, fullPath string, now time.Time) *Record {
	return &Record{
		ID:         uuid.New(),
		FileName:   fileName,
		FullPath:   fullPath,
		CreatedAt:  now,
		ModifiedAt: now,
		Version:    1,
	}
}

// State derives the lifecycle state from the terminal flags.
func (r *Record) State() State {
	switch {
	case r.IsUploaded:
		return StateUploaded
	case r.IsDeleted:
		return StateDeleted
	default:
		return StatePending
	}
}

// Terminal reports whether the record is uploaded or deleted.
func (r *Record) Terminal() bool {
	return r.IsUploaded || r.IsDeleted
}

// AddLog appends an audit entry to be saved with the next Update.
func (r *Record) AddLog(message string, isError bool, now time.Time) error {
	if r.Terminal() {
		return ErrTerminal
	}

	r.appendLog(message, isError, now)

	return nil
}

// UploadCompleted marks the record uploaded with its remote identifier.
func (r *Record) UploadCompleted(remoteID string, now time.Time) error {
	if r.Terminal() {
		return ErrTerminal
	}

	if remoteID == "" {
		return errors.New("ledger: upload completed without a remote id")
	}

	r.appendLog("Successfully uploaded "+r.FileName, false, now)

	uploadedAt := now
	r.RemoteID = remoteID
	r.UploadedAt = &uploadedAt
	r.IsUploaded = true
	r.ModifiedAt = now

	return nil
}

// Delete marks the record deleted because its local file is gone. cause is
// written to the log as an error entry.
func (r *Record) Delete(cause string, now time.Time) error {
	if r.Terminal() {
		return ErrTerminal
	}

	r.appendLog(cause, true, now)
	r.IsDeleted = true
	r.ModifiedAt = now

	return nil
}

// Unsaved returns the log entries not yet persisted.
func (r *Record) Unsaved() []RecordLog {
	return r.unsaved
}

func (r *Record) appendLog(message string, isError bool, now time.Time) {
	r.unsaved = append(r.unsaved, RecordLog{
		ID:       uuid.New(),
		RecordID: r.ID,
		Date:     now,
		Message:  message,
		IsError:  isError,
	})
}

// markSaved folds unsaved logs into Logs after a successful write.
func (r *Record) markSaved() {
	r.Logs = append(r.Logs, r.unsaved...)
	r.unsaved = nil
}
