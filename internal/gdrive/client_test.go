package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopSleep is a sleep function that returns immediately, for fast tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

// staticToken is a test TokenSource that returns a fixed token.
type staticToken string

func (t staticToken) Token() (string, error) {
	return string(t), nil
}

// newTestClient creates a Client pointing at the given httptest server
// with instant retry sleeps for fast tests.
func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	c := NewClient(Config{
		BaseURL:    url + "/drive/v3",
		UploadURL:  url + "/upload/drive/v3",
		FolderName: "Guardian",
	}, http.DefaultClient, staticToken("test-token"), slog.Default())
	c.sleepFunc = noopSleep

	return c
}

func TestDo_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	require.NoError(t, c.EmptyTrash(t.Context()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_NonRetryableError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"File not found: abc.","errors":[{"reason":"notFound"}]}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	err := c.DeleteFile(t.Context(), "abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, errors.Is(err, fs.ErrNotExist))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "notFound", apiErr.Reason)
	assert.Equal(t, "File not found: abc.", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL).EmptyTrash(t.Context())
	require.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, int32(maxRetries+1), calls.Load())
}

func TestDo_CanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.sleepFunc = func(context.Context, time.Duration) error { return context.Canceled }

	err := c.EmptyTrash(t.Context())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryBackoff_RetryAfter(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{}, nil, staticToken("x"), nil)
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": {"7"}}}

	assert.Equal(t, 7*time.Second, c.retryBackoff(resp, 0))

	for attempt := range 10 {
		b := c.calcBackoff(attempt)
		assert.LessOrEqual(t, b, time.Duration(float64(maxBackoff)*(1+jitterFraction)))
		assert.Positive(t, b)
	}
}

func TestListAllFiles_Pages(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/drive/v3/files", r.URL.Path)
		assert.Equal(t, "nextPageToken,files(id,name,parents)", r.URL.Query().Get("fields"))

		switch r.URL.Query().Get("pageToken") {
		case "":
			_, _ = io.WriteString(w, `{"nextPageToken":"p2","files":[{"id":"1","name":"a","parents":["root"]}]}`)
		case "p2":
			_, _ = io.WriteString(w, `{"files":[{"id":"2","name":"b"}]}`)
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	}))
	defer srv.Close()

	files, err := newTestClient(t, srv.URL).ListAllFiles(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []File{
		{ID: "1", Name: "a", Parents: []string{"root"}},
		{ID: "2", Name: "b"},
	}, files)
}

func TestRootID_CreatesAndCaches(t *testing.T) {
	t.Parallel()

	var lists, creates atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			lists.Add(1)
			assert.Contains(t, r.URL.Query().Get("q"), "name = 'Guardian'")
			assert.Contains(t, r.URL.Query().Get("q"), "trashed = false")
			_, _ = io.WriteString(w, `{"files":[]}`)
		case http.MethodPost:
			creates.Add(1)

			var meta File
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&meta))
			assert.Equal(t, "Guardian", meta.Name)
			assert.Equal(t, DefaultFolderMimeType, meta.MimeType)
			_, _ = io.WriteString(w, `{"id":"folder-1"}`)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	var wg sync.WaitGroup

	for range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			id, err := c.RootID(t.Context())
			assert.NoError(t, err)
			assert.Equal(t, "folder-1", id)
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), lists.Load())
	assert.Equal(t, int32(1), creates.Load())
}

func TestRootID_FindsExisting(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s", r.Method)
		}

		_, _ = io.WriteString(w, `{"files":[{"id":"existing","name":"Guardian"}]}`)
	}))
	defer srv.Close()

	id, err := newTestClient(t, srv.URL).RootID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "existing", id)
}

func TestUploadFile_Multipart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.avi")
	require.NoError(t, os.WriteFile(path, []byte("video-bytes"), 0o600))

	var uploads atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"files":[{"id":"folder-1"}]}`)
			return
		}

		assert.Equal(t, "/upload/drive/v3/files", r.URL.Path)
		assert.Equal(t, "multipart", r.URL.Query().Get("uploadType"))

		// The first attempt fails to prove the body is rebuilt on retry.
		if uploads.Add(1) == 1 {
			_, _ = io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if !assert.NoError(t, err) {
			return
		}

		assert.Equal(t, "multipart/related", mediaType)

		mr := multipart.NewReader(r.Body, params["boundary"])

		metaPart, err := mr.NextPart()
		if !assert.NoError(t, err) {
			return
		}

		var meta File
		if !assert.NoError(t, json.NewDecoder(metaPart).Decode(&meta)) {
			return
		}

		assert.Equal(t, File{Name: "clip.avi", MimeType: "video/x-msvideo", Parents: []string{"folder-1"}}, meta)

		mediaPart, err := mr.NextPart()
		if !assert.NoError(t, err) {
			return
		}

		assert.Equal(t, "video/x-msvideo", mediaPart.Header.Get("Content-Type"))

		content, err := io.ReadAll(mediaPart)
		if !assert.NoError(t, err) {
			return
		}

		assert.Equal(t, "video-bytes", string(content))

		_, err = mr.NextPart()
		assert.ErrorIs(t, err, io.EOF)

		_, _ = io.WriteString(w, `{"id":"remote-42"}`)
	}))
	defer srv.Close()

	id, err := newTestClient(t, srv.URL).UploadFile(t.Context(), path, "video/x-msvideo")
	require.NoError(t, err)
	assert.Equal(t, "remote-42", id)
	assert.Equal(t, int32(2), uploads.Load())
}

func TestUploadFile_MissingLocalFile(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).UploadFile(t.Context(), filepath.Join(t.TempDir(), "gone.avi"), "video/x-msvideo")
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Zero(t, calls.Load())
}

func TestUploadFile_VanishesBetweenAttempts(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "clip.avi")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	var uploads atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"files":[{"id":"folder-1"}]}`)
			return
		}

		uploads.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		assert.NoError(t, os.Remove(path))
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).UploadFile(t.Context(), path, "video/x-msvideo")
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, int32(1), uploads.Load())
}

func TestRequestTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL)
	c.cfg.RequestTimeout = 20 * time.Millisecond

	var sleeps atomic.Int32
	c.sleepFunc = func(context.Context, time.Duration) error {
		if sleeps.Add(1) > 1 {
			return context.Canceled
		}

		return nil
	}

	err := c.EmptyTrash(t.Context())
	require.Error(t, err)
	assert.Equal(t, int32(2), sleeps.Load())
}

func TestServiceAccountTokenSource_BadFile(t *testing.T) {
	t.Parallel()

	_, err := ServiceAccountTokenSource(t.Context(), filepath.Join(t.TempDir(), "absent.json"))
	require.ErrorIs(t, err, fs.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"type":"nope"}`), 0o600))

	_, err = ServiceAccountTokenSource(t.Context(), bad)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "parsing credentials"))
}
