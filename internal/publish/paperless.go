// Package publish uploads finished documents to Paperless.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/sebastian-xyz/scanpi/internal/document"
	"github.com/sebastian-xyz/scanpi/internal/domain"
	"github.com/sebastian-xyz/scanpi/internal/observability"
)

const (
	uploadPath     = "/api/documents/post_document/"
	defaultTimeout = 60 * time.Second
	// maxErrorBody bounds the response body kept in an upload error.
	maxErrorBody = 4 << 10
)

// Config holds the Paperless connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client uploads documents to a Paperless instance.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *observability.Logger
}

// NewClient creates a new Paperless client
func NewClient(cfg Config, logger *observability.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = observability.Nop()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithComponent("paperless"),
	}
}

// UploadURL returns the document upload endpoint.
func (c *Client) UploadURL() string {
	return c.baseURL + uploadPath
}

// Publish implements domain.Publisher. Any non-2xx response is an upload
// error carrying the status and response body. Uploads are never retried.
func (c *Client) Publish(ctx context.Context, path string) error {
	body, contentType, err := c.buildBody(path)
	if err != nil {
		return domain.UploadError("Failed to build upload request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UploadURL(), body)
	if err != nil {
		return domain.UploadError("Failed to build upload request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", c.UploadURL()).Str("path", path).Msg("uploading document")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.UploadError("Failed to send upload request", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.UploadError(
			fmt.Sprintf("Paperless returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))), nil)
	}

	event := c.logger.Info().Str("title", document.Title(path)).Int("status", resp.StatusCode)
	// Paperless answers with the id of the consumption task as a JSON string.
	var taskID string
	if json.Unmarshal(respBody, &taskID) == nil && taskID != "" {
		event = event.Str("task_id", taskID)
	}
	event.Msg("PDF uploaded successfully to Paperless")
	return nil
}

// buildBody assembles the multipart form: the file under "document" and the
// title under "title".
func (c *Client) buildBody(path string) (io.Reader, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read document: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="document"; filename=%q`, filepath.Base(path)))
	header.Set("Content-Type", mimetype.Detect(data).String())
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}

	if err := w.WriteField("title", document.Title(path)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
