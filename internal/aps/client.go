package aps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stanstork/designauto/internal/auth"
)

const (
	DefaultBaseURL = "https://developer.api.autodesk.com"
	DefaultRegion  = "us-east"
)

var (
	ErrNotFound = errors.New("resource not found")
	ErrConflict = errors.New("resource already exists")
)

// APIError is a non-2xx answer from the platform.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// Client talks to the platform REST APIs on behalf of the application.
type Client struct {
	httpClient   *http.Client
	uploadClient *http.Client
	baseURL      string
	daPath       string
	tokens       auth.Source
	logger       zerolog.Logger
}

// invalidator is implemented by token sources that can drop a token the
// platform no longer accepts.
type invalidator interface {
	Invalidate()
}

type Option func(*Client)

// WithRegion selects the design automation region (default us-east).
func WithRegion(region string) Option {
	return func(c *Client) { c.daPath = "/da/" + region + "/v3" }
}

// WithUploadClient sets the client used for bulk transfers to pre-signed
// storage urls. It should not impose a per-request timeout or buffer bodies.
func WithUploadClient(hc *http.Client) Option {
	return func(c *Client) { c.uploadClient = hc }
}

func NewClient(httpClient *http.Client, baseURL string, tokens auth.Source, logger zerolog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient:   httpClient,
		uploadClient: &http.Client{},
		baseURL:      strings.TrimRight(baseURL, "/"),
		daPath:       "/da/" + DefaultRegion + "/v3",
		tokens:       tokens,
		logger:       logger.With().Str("component", "aps").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tokens exposes the credential source the client authenticates with.
func (c *Client) Tokens() auth.Source {
	return c.tokens
}

// do sends an authenticated JSON request. in may be nil; out may be nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", tok.Bearer())
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	observeCall(method, path, resp, start)
	if err != nil {
		c.logger.Error().Err(err).Str("method", method).Str("path", path).Msg("platform request failed")
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := c.tokens.(invalidator); ok {
				inv.Invalidate()
			}
		}
		c.logger.Debug().Int("status", resp.StatusCode).Str("method", method).Str("path", path).Msg("platform request rejected")
		return apiErr
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}
