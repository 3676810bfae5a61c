package defaults

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// HTTPOption configures an HTTP defaults source.
type HTTPOption func(*httpSource)

// WithHTTPClient overrides the client used to fetch defaults.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *httpSource) {
		s.client = client
	}
}

// WithTimeout bounds the request. Zero leaves the caller's context in charge.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(s *httpSource) {
		s.timeout = timeout
	}
}

// WithTransform maps the decoded response into the form's shape, for example
// picking `username` and `email` out of a user record and adding blank
// entries for fields the endpoint does not know about.
func WithTransform(fn func(map[string]any) (map[string]any, error)) HTTPOption {
	return func(s *httpSource) {
		s.transform = fn
	}
}

type httpSource struct {
	url       string
	client    *http.Client
	timeout   time.Duration
	transform func(map[string]any) (map[string]any, error)
}

// FromHTTP fetches a JSON object with GET and uses it as the default tree.
func FromHTTP(url string, opts ...HTTPOption) Source {
	src := &httpSource{url: url, client: http.DefaultClient}
	for _, opt := range opts {
		if opt != nil {
			opt(src)
		}
	}
	return src
}

func (s *httpSource) Resolve(ctx context.Context) (map[string]any, error) {
	if s.client == nil {
		return nil, errors.New("defaults: http client is not configured")
	}
	if s.url == "" {
		return nil, errors.New("defaults: url is required")
	}

	reqCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("defaults: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("defaults: fetch %s: %w", s.url, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("defaults: fetch %s: unexpected status %s", s.url, resp.Status)
	}

	var tree map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&tree); err != nil {
		return nil, fmt.Errorf("defaults: decode %s: %w", s.url, err)
	}

	if s.transform != nil {
		tree, err = s.transform(tree)
		if err != nil {
			return nil, fmt.Errorf("defaults: transform %s: %w", s.url, err)
		}
	}
	return Normalize(tree), nil
}
