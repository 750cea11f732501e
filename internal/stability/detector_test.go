package stability

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

type fakeIngester struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (f *fakeIngester) Ingest(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.paths = append(f.paths, path)

	return f.err
}

func (f *fakeIngester) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.paths)
}

type fakeInfo struct {
	fs.FileInfo
	size int64
}

func (f fakeInfo) Size() int64 { return f.size }

// fakeClock advances only when the detector sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	return nil
}

// newFakeDetector returns a detector whose stat replays sizes; the last size
// repeats once the sequence is exhausted.
func newFakeDetector(t *testing.T, sizes []int64, ing Ingester) (*Detector, *int) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	d := NewDetector(t.Context(), 30*time.Second, 60*time.Second, ing, testLogger(t))
	d.nowFunc = clock.Now
	d.sleepFunc = clock.Sleep

	polls := 0
	d.statFunc = func(string) (fs.FileInfo, error) {
		i := min(polls, len(sizes)-1)
		polls++

		return fakeInfo{size: sizes[i]}, nil
	}

	return d, &polls
}

func TestCheck_StableFiresOnce(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{}
	d, polls := newFakeDetector(t, []int64{10, 10, 10}, ing)

	assert.Equal(t, OutcomeStable, d.Check(t.Context(), "/m/a.avi"))
	assert.Equal(t, []string{"/m/a.avi"}, ing.paths)
	// First sample sets the baseline; stability needs more than 60s after it.
	assert.Equal(t, 4, *polls)
}

func TestCheck_SizeChangeResetsClock(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{}
	d, polls := newFakeDetector(t, []int64{10, 20, 20, 20}, ing)

	assert.Equal(t, OutcomeStable, d.Check(t.Context(), "/m/b.avi"))
	assert.Equal(t, 1, ing.count())
	assert.Equal(t, 5, *polls)
}

func TestCheck_Vanished(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{}
	d := NewDetector(t.Context(), time.Millisecond, time.Millisecond, ing, testLogger(t))
	d.sleepFunc = func(context.Context, time.Duration) error { return nil }

	assert.Equal(t, OutcomeVanished, d.Check(t.Context(), filepath.Join(t.TempDir(), "gone.avi")))
	assert.Zero(t, ing.count())
}

func TestCheck_StatError(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{}
	d, _ := newFakeDetector(t, []int64{1}, ing)
	d.statFunc = func(string) (fs.FileInfo, error) { return nil, fs.ErrPermission }

	assert.Equal(t, OutcomeError, d.Check(t.Context(), "/m/c.avi"))
	assert.Zero(t, ing.count())
}

func TestCheck_Canceled(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{}
	d, _ := newFakeDetector(t, []int64{1, 2, 3}, ing)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	assert.Equal(t, OutcomeCanceled, d.Check(ctx, "/m/d.avi"))
	assert.Zero(t, ing.count())
}

func TestCheck_IngestErrorStillStable(t *testing.T) {
	t.Parallel()

	ing := &fakeIngester{err: errors.New("ledger unavailable")}
	d, _ := newFakeDetector(t, []int64{5}, ing)

	assert.Equal(t, OutcomeStable, d.Check(t.Context(), "/m/e.avi"))
	assert.Equal(t, 1, ing.count())
}

func TestDispatch_RealFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.avi")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	ing := &fakeIngester{}
	d := NewDetector(t.Context(), 5*time.Millisecond, 20*time.Millisecond, ing, testLogger(t))

	d.Dispatch(path)
	d.Wait()

	assert.Equal(t, []string{path}, ing.paths)
}

func TestDispatch_CanceledByBaseContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	ing := &fakeIngester{}
	d := NewDetector(ctx, time.Hour, time.Hour, ing, testLogger(t))

	d.Dispatch("/m/never.avi")
	cancel()
	d.Wait()

	assert.Zero(t, ing.count())
}

func TestOutcome_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "stable", OutcomeStable.String())
	assert.Equal(t, "vanished", OutcomeVanished.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
