// Package fetcher retrieves the hello payload from its upstream endpoint.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"hello-backend/config"
)

// DefaultEndpoint is the upstream queried when no URL is configured.
const DefaultEndpoint = "https://hanna03re.pythonanywhere.com/api/hello"

// ErrFetch is wrapped by every error returned from FetchData.
var ErrFetch = errors.New("fetch data failed")

// Payload is the decoded response body. Its shape is owned by the upstream server.
type Payload = any

// HTTPDoer abstracts HTTP operations for dependency injection.
// The standard *http.Client satisfies this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DataFetcher is implemented by anything that can produce the current payload.
type DataFetcher interface {
	FetchData(ctx context.Context) (Payload, error)
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received non-2xx status code: %s", e.Status)
}

// Fetcher issues GET requests against a single endpoint. It holds no mutable
// state, so one Fetcher may serve any number of concurrent calls.
type Fetcher struct {
	endpoint string
	client   HTTPDoer
}

// New creates a Fetcher from configuration. The client has no timeout of its own;
// callers bound a call through its context.
func New(cfg config.FetcherConfig) *Fetcher {
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Fetcher will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			t := http.DefaultTransport.(*http.Transport).Clone()
			t.Proxy = http.ProxyURL(proxyURL)
			transport = t
		}
	}
	return NewWithClient(cfg.URL, &http.Client{Transport: transport})
}

// NewWithClient creates a Fetcher using the given client. An empty endpoint
// selects DefaultEndpoint.
func NewWithClient(endpoint string, client HTTPDoer) *Fetcher {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{endpoint: endpoint, client: client}
}

// Endpoint returns the URL this Fetcher targets.
func (f *Fetcher) Endpoint() string {
	return f.endpoint
}

// FetchData performs one GET request and returns the decoded body.
//
// Network failures, non-2xx responses and undecodable bodies are returned as
// errors wrapping ErrFetch; nothing is retried. An empty 2xx body yields a nil
// payload.
func (f *Fetcher) FetchData(ctx context.Context) (Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrFetch, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %w", ErrFetch, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}

	return Decode(body)
}

// Decode turns a raw body into a Payload. Numbers are kept as json.Number so
// the payload round-trips unchanged.
func Decode(body []byte) (Payload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload Payload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode body: %w", ErrFetch, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: decode body: unexpected data after JSON value", ErrFetch)
	}
	return payload, nil
}
