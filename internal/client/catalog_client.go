package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"creature-catalog-api/internal/models"
)

// defaultMaxBodyBytes caps how much of a response body is read
const defaultMaxBodyBytes = 10 * 1024 * 1024

// CatalogClient reads the remote creature catalog
type CatalogClient struct {
	baseURL    string
	collection string
	httpClient *http.Client
	maxBody    int64
	logger     *slog.Logger
}

// Option customises a CatalogClient
type Option func(*CatalogClient)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cc *CatalogClient) { cc.httpClient = c }
}

// WithMaxBodyBytes caps the size of an accepted response body
func WithMaxBodyBytes(n int64) Option {
	return func(cc *CatalogClient) {
		if n > 0 {
			cc.maxBody = n
		}
	}
}

// WithLogger sets the client logger
func WithLogger(l *slog.Logger) Option {
	return func(cc *CatalogClient) { cc.logger = l }
}

// NewCatalogClient creates a new catalog client
func NewCatalogClient(baseURL, collection string, opts ...Option) *CatalogClient {
	c := &CatalogClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: strings.Trim(collection, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxBody: defaultMaxBodyBytes,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// FetchPage retrieves one page of lightweight list entries
func (c *CatalogClient) FetchPage(ctx context.Context, offset, limit int) (*models.Page, error) {
	endpoint := fmt.Sprintf("%s/%s?limit=%d&offset=%d", c.baseURL, c.collection, limit, offset)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	page, err := decodeListPage(body)
	if err != nil {
		return nil, models.NewError(models.ErrServer, "failed to decode page", err)
	}

	c.logger.Debug("Fetched catalog page",
		"offset", offset,
		"limit", limit,
		"items", len(page.Items),
		"total_count", page.TotalCount,
		"has_more", page.HasMore)

	return page, nil
}

// FetchDetail retrieves the full detail record of one creature
func (c *CatalogClient) FetchDetail(ctx context.Context, id int) (*models.DetailRecord, error) {
	endpoint := fmt.Sprintf("%s/%s/%d", c.baseURL, c.collection, id)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	record, err := decodeDetail(body)
	if err != nil {
		return nil, models.NewError(models.ErrServer, "failed to decode detail", err)
	}
	return record, nil
}

// get issues a GET and returns the body of a 2xx response
func (c *CatalogClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, models.NewError(models.ErrUnexpected, "failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, models.NewError(models.ErrNotFound, "resource not found", fmt.Errorf("GET %s", endpoint))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, models.NewError(models.ErrServer, "request failed",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, models.NewError(models.ErrServer, "failed to read response", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, models.NewError(models.ErrServer, "response too large",
			fmt.Errorf("%w: body exceeds %d bytes", models.ErrMalformedResponse, c.maxBody))
	}
	return body, nil
}

// classifyTransportError separates "cannot reach the server" from other
// I/O failures. Only the former lets callers fall back to stale data.
func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewError(models.ErrTimeout, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return models.NewError(models.ErrUnexpected, "request cancelled", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return models.NewError(models.ErrTimeout, "request timed out", err)
	}

	if isConnectivityError(err) {
		return models.NewError(models.ErrNoConnectivity, "no connection", err)
	}
	return models.NewError(models.ErrServer, "transport error", err)
}

func isConnectivityError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}

// IDFromRef derives an entry id from the trailing path segment of its URL
func IDFromRef(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse ref %q: %w", ref, err)
	}

	path := strings.TrimRight(u.Path, "/")
	idx := strings.LastIndex(path, "/")
	segment := path[idx+1:]
	if segment == "" {
		return "", fmt.Errorf("ref %q has no trailing segment", ref)
	}
	if _, err := strconv.Atoi(segment); err != nil {
		return "", fmt.Errorf("ref %q: trailing segment %q is not numeric", ref, segment)
	}
	return segment, nil
}
