package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/recruitu/networku/internal/domain"
)

var tracer = otel.Tracer("networku.internal.contacts")

// HTTPError reports a non-2xx reply from the contacts directory.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("contacts: HTTP error, status %d", e.StatusCode)
}

// DirectoryConfig describes how to reach the contacts directory.
type DirectoryConfig struct {
	URL     string
	Timeout time.Duration
}

// Directory is an unauthenticated client for the contacts directory.
type Directory struct {
	baseURL *url.URL
	http    *http.Client
}

// NewDirectory validates the configuration and returns a ready-to-use client.
func NewDirectory(cfg DirectoryConfig) (*Directory, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("contacts: directory URL required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("contacts: parse directory URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Directory{
		baseURL: u,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type searchResponse struct {
	Results []domain.ContactRecord `json:"results"`
}

// Search issues one GET with the query's non-empty filters and returns every
// record in the reply.
func (d *Directory) Search(ctx context.Context, q domain.ContactQuery) ([]domain.ContactRecord, error) {
	ctx, span := tracer.Start(ctx, "contacts.search")
	defer span.End()

	u := *d.baseURL
	values := u.Query()
	for key, vals := range q.Values() {
		values[key] = vals
	}
	u.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("contacts: request build failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("contacts: request failed: %w", err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		err := &HTTPError{StatusCode: resp.StatusCode}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("contacts: decode response failed: %w", err)
	}
	span.SetAttributes(attribute.Int("networku.contacts.results", len(out.Results)))
	return out.Results, nil
}
