package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/maidastach/guardian/internal/failure"
)

func TestRecord_TerminalTransitions(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	uploaded := NewRecord("a.avi", "/m/a.avi", now)
	if err := uploaded.UploadCompleted("id-1", now); err != nil {
		t.Fatalf("UploadCompleted: %v", err)
	}

	if err := uploaded.Delete("late", now); !errors.Is(err, ErrTerminal) {
		t.Errorf("Delete after upload = %v, want ErrTerminal", err)
	}

	if err := uploaded.UploadCompleted("id-2", now); !errors.Is(err, ErrTerminal) {
		t.Errorf("second UploadCompleted = %v, want ErrTerminal", err)
	}

	if err := uploaded.AddLog("x", false, now); !errors.Is(err, failure.ErrInvalidAction) {
		t.Errorf("AddLog after upload = %v, want invalid action", err)
	}

	if uploaded.RemoteID != "id-1" || uploaded.IsDeleted {
		t.Errorf("terminal record changed: %+v", uploaded)
	}

	deleted := NewRecord("b.avi", "/m/b.avi", now)
	if err := deleted.Delete("file not found", now); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if err := deleted.UploadCompleted("id", now); !errors.Is(err, ErrTerminal) {
		t.Errorf("UploadCompleted after delete = %v, want ErrTerminal", err)
	}

	if deleted.State() != StateDeleted || deleted.IsUploaded {
		t.Errorf("State = %s uploaded = %v", deleted.State(), deleted.IsUploaded)
	}

	logs := deleted.Unsaved()
	if len(logs) != 1 || !logs[0].IsError || logs[0].RecordID != deleted.ID {
		t.Errorf("delete log = %+v, want one error entry for the record", logs)
	}
}

func TestRecord_UploadRequiresRemoteID(t *testing.T) {
	t.Parallel()

	r := NewRecord("a.avi", "/m/a.avi", time.Now())
	if err := r.UploadCompleted("", time.Now()); err == nil {
		t.Fatal("UploadCompleted with empty id succeeded")
	}

	if r.Terminal() {
		t.Error("record became terminal after rejected upload")
	}
}

func TestParseState(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"pending", "uploaded", "deleted"} {
		if _, err := ParseState(s); err != nil {
			t.Errorf("ParseState(%q): %v", s, err)
		}
	}

	if _, err := ParseState("done"); err == nil {
		t.Error("ParseState(done) succeeded")
	}
}
