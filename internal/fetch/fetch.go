// Package fetch downloads target form documents over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Fetcher retrieves a document from a URL, returning its bytes and content type.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Client is the HTTP implementation of Fetcher.
type Client struct {
	httpClient *http.Client
	maxSize    int64
	logger     *slog.Logger
}

// NewClient creates a fetcher that refuses documents larger than maxSize bytes.
func NewClient(maxSize int64, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxSize:    maxSize,
		logger:     logger,
	}
}

// Fetch downloads url. Any non-2xx response is an error; a non-PDF content type
// is logged but tolerated, since many form hosts mislabel their downloads.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("downloading form: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("failed to download form (%d)", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading form body: %w", err)
	}
	if int64(len(data)) > c.maxSize {
		return nil, "", fmt.Errorf("form exceeds maximum size of %d bytes", c.maxSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}
	if !strings.Contains(contentType, "pdf") {
		c.logger.Warn("downloaded form does not advertise PDF content type",
			"url", url, "contentType", contentType)
	}

	return data, contentType, nil
}
