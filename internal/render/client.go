// Package render obtains a freshly rendered PDF for the fixture by posting
// it to the report renderer over HTTP.
//
// There are no retries: a failed, slow or malformed render fails the run.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"pdfregress/internal/logger"
)

const (
	// DefaultTimeout bounds the whole render call.
	DefaultTimeout = 60 * time.Second

	// maxDetailBytes caps the response body surfaced in error messages.
	maxDetailBytes = 2048

	requestContentType = "text/plain; charset=utf-8"
	pdfContentType     = "application/pdf"
)

// Client posts fixtures to a renderer endpoint.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	log        zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a renderer client for endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		log:        logger.WithComponent("renderer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Render sends fixture as the plain-text request body and returns the PDF
// payload of a 200 application/pdf response.
func (c *Client) Render(ctx context.Context, fixture []byte) ([]byte, error) {
	const op = "Render"
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(fixture))
	if err != nil {
		return nil, c.fail(op, ErrFetchFailed, 0, err.Error())
	}
	req.Header.Set("Content-Type", requestContentType)

	c.log.Debug().
		Str("endpoint", c.endpoint).
		Str("fixture_size", humanize.Bytes(uint64(len(fixture)))).
		Dur("timeout", c.timeout).
		Msg("Requesting render")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, c.fail(op, ErrTimeout, 0, fmt.Sprintf("no response within %s", c.timeout))
		}
		return nil, c.fail(op, ErrFetchFailed, 0, err.Error())
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, c.fail(op, ErrTimeout, resp.StatusCode, "response body not received in time")
		}
		return nil, c.fail(op, ErrFetchFailed, resp.StatusCode, err.Error())
	}

	ctype := resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK {
		return nil, c.fail(op, ErrUnexpectedResponse, resp.StatusCode, detail(payload))
	}
	if !strings.Contains(ctype, pdfContentType) {
		return nil, c.fail(op, ErrUnexpectedResponse, resp.StatusCode,
			fmt.Sprintf("content_type=%q: %s", ctype, detail(payload)))
	}
	if !bytes.HasPrefix(payload, []byte("%PDF")) {
		return nil, c.fail(op, ErrNotPDF, resp.StatusCode, "missing PDF header")
	}

	c.log.Info().
		Str("endpoint", c.endpoint).
		Str("size", humanize.Bytes(uint64(len(payload)))).
		Dur("duration", time.Since(start)).
		Msg("Render received")

	return payload, nil
}

func (c *Client) fail(op string, err error, status int, details string) error {
	c.log.Error().
		Err(err).
		Str("endpoint", c.endpoint).
		Int("status", status).
		Str("details", details).
		Msg("Render failed")
	return &FetchError{Op: op, Err: err, Endpoint: c.endpoint, StatusCode: status, Details: details}
}

// detail decodes a response body for diagnostics, replacing invalid UTF-8 and
// truncating long bodies.
func detail(body []byte) string {
	truncated := len(body) > maxDetailBytes
	if truncated {
		body = body[:maxDetailBytes]
	}
	s := strings.ToValidUTF8(string(body), "�")
	s = strings.TrimSpace(s)
	if truncated {
		s += "…"
	}
	return s
}
