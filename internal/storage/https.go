package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	units "github.com/docker/go-units"

	"github.com/aora/backend/internal/security"
)

// HTTPSource opens https:// URIs through an SSRF-guarded client. Bodies larger
// than maxBytes are refused.
type HTTPSource struct {
	client   *http.Client
	maxBytes int64
	validate func(string) error
}

// NewHTTPSource returns a source using client, which should come from
// security.NewSafeClient.
func NewHTTPSource(client *http.Client, maxBytes int64) *HTTPSource {
	return &HTTPSource{client: client, maxBytes: maxBytes, validate: security.ValidateRemoteURL}
}

// Open implements Source.
func (s *HTTPSource) Open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	if err := s.validate(uri); err != nil {
		return nil, 0, fmt.Errorf("remote storage: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("remote storage: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("remote storage: fetch %s: %w", uri, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("remote storage: fetch %s: unexpected status %d", uri, resp.StatusCode)
	}
	if s.maxBytes > 0 && resp.ContentLength > s.maxBytes {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("remote storage: %s is %s, above the %s limit", uri,
			units.HumanSize(float64(resp.ContentLength)), units.HumanSize(float64(s.maxBytes)))
	}

	body := resp.Body
	if s.maxBytes > 0 {
		body = &limitedBody{ReadCloser: resp.Body, remaining: s.maxBytes}
	}
	return body, resp.ContentLength, nil
}

// limitedBody fails once more than the allowed number of bytes has been read.
type limitedBody struct {
	io.ReadCloser
	remaining int64
}

func (l *limitedBody) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, fmt.Errorf("remote storage: body exceeds size limit")
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.ReadCloser.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, fmt.Errorf("remote storage: body exceeds size limit")
	}
	return n, err
}
