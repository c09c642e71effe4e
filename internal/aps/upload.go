package aps

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/stanstork/designauto/internal/models"
)

// UploadAppBundle posts a bundle package to the pre-signed form endpoint
// returned by bundle creation. The storage service ignores every field after
// "file", so the package is always written last.
func (c *Client) UploadAppBundle(ctx context.Context, params models.UploadParameters, filename string, pkg io.Reader) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(params.FormData))
	for k := range params.FormData {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := form.WriteField(k, params.FormData[k]); err != nil {
			return errors.Wrapf(err, "write form field %s", k)
		}
	}

	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return errors.Wrap(err, "create file part")
	}
	if _, err := io.Copy(part, pkg); err != nil {
		return errors.Wrap(err, "copy package")
	}
	if err := form.Close(); err != nil {
		return errors.Wrap(err, "close form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, params.EndpointURL, &buf)
	if err != nil {
		return errors.Wrap(err, "build upload request")
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{Method: http.MethodPost, Path: "bundle upload endpoint", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return nil
}
