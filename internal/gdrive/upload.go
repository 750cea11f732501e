package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
)

// UploadFile uploads the local file at path into the upload folder and
// returns the new remote ID. A missing local file yields an error wrapping
// fs.ErrNotExist, which is never retried.
func (c *Client) UploadFile(ctx context.Context, path, mimeType string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("gdrive: uploading %s: %w", path, err)
	}

	folderID, err := c.RootID(ctx)
	if err != nil {
		return "", err
	}

	meta, err := json.Marshal(File{
		Name:     filepath.Base(path),
		MimeType: mimeType,
		Parents:  []string{folderID},
	})
	if err != nil {
		return "", fmt.Errorf("gdrive: encoding metadata: %w", err)
	}

	body := func() (io.ReadCloser, string, error) {
		return multipartBody(path, mimeType, meta)
	}

	resp, err := c.do(ctx, http.MethodPost, c.cfg.UploadURL+"/files?uploadType=multipart&fields=id", body)
	if err != nil {
		return "", fmt.Errorf("gdrive: uploading %s: %w", path, err)
	}
	defer resp.Body.Close()

	var created File
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("gdrive: decoding upload response: %w", err)
	}

	if created.ID == "" {
		return "", fmt.Errorf("gdrive: upload of %s returned no id", path)
	}

	c.logger.Info("file uploaded",
		slog.String("path", path),
		slog.String("remote_id", created.ID),
	)

	return created.ID, nil
}

// multipartBody opens path and streams a multipart/related body of the JSON
// metadata part followed by the file content.
func multipartBody(path, mimeType string, meta []byte) (io.ReadCloser, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}

	var head bytes.Buffer
	w := multipart.NewWriter(&head)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")

	part, err := w.CreatePart(metaHeader)
	if err != nil {
		f.Close()
		return nil, "", err
	}

	if _, err := part.Write(meta); err != nil {
		f.Close()
		return nil, "", err
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", mimeType)

	if _, err := w.CreatePart(mediaHeader); err != nil {
		f.Close()
		return nil, "", err
	}

	preamble := bytes.Clone(head.Bytes())
	head.Reset()

	if err := w.Close(); err != nil {
		f.Close()
		return nil, "", err
	}

	epilogue := bytes.Clone(head.Bytes())

	return &fileBody{
		Reader: io.MultiReader(bytes.NewReader(preamble), f, bytes.NewReader(epilogue)),
		file:   f,
	}, "multipart/related; boundary=" + w.Boundary(), nil
}

type fileBody struct {
	io.Reader
	file *os.File
}

func (b *fileBody) Close() error {
	return b.file.Close()
}
