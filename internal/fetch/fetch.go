// Package fetch retrieves web resources for capture.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/runnerr0/synapse/internal/media"
)

// DefaultUserAgent is a desktop browser string; several sites refuse or
// truncate responses for unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

const (
	DefaultTimeout      = 5 * time.Second
	DefaultMaxBodyBytes = 10 << 20
	maxRedirects        = 5
)

// FetchError reports a failed retrieval. Status is zero when no HTTP
// response was received.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the fetch failed because its deadline passed.
func (e *FetchError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Response is a successfully fetched resource.
type Response struct {
	Body        []byte
	ContentType string
	Kind        media.Kind
	FinalURL    string
}

// Client performs single-attempt GET requests with a per-request timeout.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaxBodyBytes caps the bytes read from a response. Zero means
	// DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

func (c *Client) httpClient() *http.Client {
	base := http.Client{}
	if c.HTTPClient != nil {
		base = *c.HTTPClient
	}
	base.CheckRedirect = checkRedirect
	return &base
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("too many redirects")
	}
	if !isHTTPScheme(req.URL) {
		return errors.New("redirect to unsupported scheme")
	}
	return nil
}

// Fetch issues a GET for rawURL. Transport failures, timeouts and non-2xx
// statuses are returned as *FetchError. There are no retries.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("parse url: %w", err)}
	}
	if !isHTTPScheme(u) || u.Host == "" {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("unsupported URL %q", rawURL)}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("new request: %w", err)}
	}
	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: rawURL, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", resp.Status)}
	}

	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	ct := resp.Header.Get("Content-Type")
	kind := media.KindFromContentType(ct)
	if kind == media.KindNone && len(body) > 0 {
		ct = http.DetectContentType(body)
		kind = media.KindFromContentType(ct)
	}

	return &Response{
		Body:        body,
		ContentType: ct,
		Kind:        kind,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
