package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const listPageSize = 1000

// File is the subset of Drive file metadata guardian uses.
type File struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

type fileList struct {
	NextPageToken string `json:"nextPageToken"`
	Files         []File `json:"files"`
}

// ListAllFiles returns every file visible to the account, following pages.
func (c *Client) ListAllFiles(ctx context.Context) ([]File, error) {
	var (
		all       []File
		pageToken string
	)

	for {
		q := url.Values{}
		q.Set("fields", "nextPageToken,files(id,name,parents)")
		q.Set("pageSize", fmt.Sprint(listPageSize))

		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		page, err := c.listFiles(ctx, q)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Files...)

		if page.NextPageToken == "" {
			break
		}

		pageToken = page.NextPageToken
	}

	c.logger.Debug("listed drive files", slog.Int("count", len(all)))

	return all, nil
}

// DeleteFile permanently deletes a file by ID.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.cfg.BaseURL+"/files/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("gdrive: deleting %s: %w", id, err)
	}

	drain(resp)

	return nil
}

// EmptyTrash permanently deletes every trashed file.
func (c *Client) EmptyTrash(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, c.cfg.BaseURL+"/files/trash", nil)
	if err != nil {
		return fmt.Errorf("gdrive: emptying trash: %w", err)
	}

	drain(resp)

	return nil
}

// RootID returns the ID of the upload folder, creating it if it is missing.
// The ID is cached after the first lookup.
func (c *Client) RootID(ctx context.Context) (string, error) {
	c.folderMu.Lock()
	defer c.folderMu.Unlock()

	if c.folderID != "" {
		return c.folderID, nil
	}

	id, err := c.findFolder(ctx)
	if err != nil {
		return "", err
	}

	if id == "" {
		c.logger.Warn("folder not found on drive, creating it", slog.String("folder", c.cfg.FolderName))

		if id, err = c.createFolder(ctx); err != nil {
			return "", err
		}
	}

	c.folderID = id
	c.logger.Info("using drive folder",
		slog.String("folder", c.cfg.FolderName),
		slog.String("folder_id", id),
	)

	return id, nil
}

func (c *Client) findFolder(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("mimeType = '%s' and trashed = false and name = '%s'",
		escapeQuery(c.cfg.FolderMimeType), escapeQuery(c.cfg.FolderName)))
	q.Set("fields", "files(id,name)")
	q.Set("pageSize", "1")

	page, err := c.listFiles(ctx, q)
	if err != nil {
		return "", fmt.Errorf("gdrive: finding folder %q: %w", c.cfg.FolderName, err)
	}

	if len(page.Files) == 0 {
		return "", nil
	}

	return page.Files[0].ID, nil
}

func (c *Client) createFolder(ctx context.Context) (string, error) {
	meta, err := json.Marshal(File{Name: c.cfg.FolderName, MimeType: c.cfg.FolderMimeType})
	if err != nil {
		return "", fmt.Errorf("gdrive: encoding folder metadata: %w", err)
	}

	body := func() (io.ReadCloser, string, error) {
		return io.NopCloser(bytes.NewReader(meta)), "application/json", nil
	}

	resp, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/files?fields=id", body)
	if err != nil {
		return "", fmt.Errorf("gdrive: creating folder %q: %w", c.cfg.FolderName, err)
	}
	defer resp.Body.Close()

	var created File
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("gdrive: decoding created folder: %w", err)
	}

	if created.ID == "" {
		return "", fmt.Errorf("gdrive: created folder %q has no id", c.cfg.FolderName)
	}

	return created.ID, nil
}

func (c *Client) listFiles(ctx context.Context, q url.Values) (*fileList, error) {
	resp, err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/files?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("gdrive: listing files: %w", err)
	}
	defer resp.Body.Close()

	var page fileList
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("gdrive: decoding file list: %w", err)
	}

	return &page, nil
}

// escapeQuery escapes a value for a single-quoted Drive query literal.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
