package mcp

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
)

const (
	planDownloadPath = "/plan/"
	planUploadPath   = "/plan/upload"

	uploadFieldName = "plan"
)

// DownloadPlan fetches the plan file for id over the file side-channel.
// The filename reported in the server's Content-Disposition header is
// returned alongside the bytes, falling back to "<id>.md" when the header
// is missing or malformed.
func (c *Client) DownloadPlan(ctx context.Context, id string) (string, []byte, error) {
	data, header, err := c.transport.raw(ctx, http.MethodGet, planDownloadPath+id, nil, nil, c.transferTimeout)
	if err != nil {
		return "", nil, err
	}

	filename := id + ".md"
	if cd := header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				filename = filepath.Base(name)
			}
		}
	}
	return filename, data, nil
}

// UploadPlan sends a plan file to the server as a multipart form with a
// single "plan" file field.
func (c *Client) UploadPlan(ctx context.Context, filename string, contents []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(uploadFieldName, filepath.Base(filename))
	if err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(contents); err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}

	headers := map[string]string{"Content-Type": w.FormDataContentType()}
	_, _, err = c.transport.raw(ctx, http.MethodPost, planUploadPath, headers, &buf, c.transferTimeout)
	return err
}
