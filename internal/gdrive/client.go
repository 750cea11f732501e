package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Retry and backoff constants.
const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
	userAgent      = "guardian/0.1"

	// DefaultBaseURL is the Drive v3 metadata endpoint.
	DefaultBaseURL = "https://www.googleapis.com/drive/v3"
	// DefaultUploadURL is the Drive v3 media upload endpoint.
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3"

	// DefaultFolderMimeType is the Drive MIME type for folders.
	DefaultFolderMimeType = "application/vnd.google-apps.folder"
)

// TokenSource provides OAuth2 bearer tokens.
type TokenSource interface {
	Token() (string, error)
}

// Config holds the client settings from the [drive] config section.
type Config struct {
	BaseURL        string
	UploadURL      string
	FolderName     string
	FolderMimeType string
	// RequestTimeout bounds each HTTP attempt. Zero means no per-attempt limit.
	RequestTimeout time.Duration
}

// Client talks to the Google Drive v3 REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error

	folderMu sync.Mutex
	folderID string
}

// bodyFunc produces a fresh request body and its content type for each
// attempt, so retries never replay a half-consumed reader.
type bodyFunc func() (io.ReadCloser, string, error)

// NewClient creates a Drive client.
func NewClient(cfg Config, httpClient *http.Client, token TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.UploadURL == "" {
		cfg.UploadURL = DefaultUploadURL
	}

	if cfg.FolderMimeType == "" {
		cfg.FolderMimeType = DefaultFolderMimeType
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// do executes a request against url with retries. The caller closes the
// response body on success.
func (c *Client) do(ctx context.Context, method, url string, body bodyFunc) (*http.Response, error) {
	var attempt int

	for {
		resp, err := c.doOnce(ctx, method, url, body)
		if err != nil {
			var be *bodyError
			if errors.As(err, &be) {
				return nil, fmt.Errorf("gdrive: preparing %s %s: %w", method, url, be.err)
			}

			if ctx.Err() != nil {
				return nil, fmt.Errorf("gdrive: request canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("method", method),
					slog.String("url", url),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("gdrive: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("gdrive: %s %s failed after %d retries: %w", method, url, maxRetries, err)
		}

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("method", method),
				slog.String("url", url),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("method", method),
				slog.String("url", url),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("gdrive: request canceled: %w", err)
			}

			attempt++

			continue
		}

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("method", method),
				slog.String("url", url),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, newAPIError(resp.StatusCode, errBody)
	}
}

// doOnce executes a single attempt bounded by the per-request timeout. The
// timeout stays armed until the caller closes the response body.
func (c *Client) doOnce(ctx context.Context, method, url string, body bodyFunc) (*http.Response, error) {
	cancel := context.CancelFunc(func() {})
	if c.cfg.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
	}

	var (
		reader      io.ReadCloser
		contentType string
	)

	if body != nil {
		var err error

		reader, contentType, err = body()
		if err != nil {
			cancel()
			return nil, &bodyError{err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		cancel()

		if reader != nil {
			reader.Close()
		}

		return nil, fmt.Errorf("creating request: %w", err)
	}

	tok, err := c.token.Token()
	if err != nil {
		cancel()

		if reader != nil {
			reader.Close()
		}

		return nil, fmt.Errorf("obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}

	return resp, nil
}

// bodyError marks a failure to build the request body. It is never retried.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string { return e.err.Error() }
func (e *bodyError) Unwrap() error { return e.err }

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()

	return err
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
