// Package storage resolves the bytes behind asset URIs before they are
// uploaded to the remote bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ErrUnsupportedScheme indicates that no source is registered for a URI scheme.
var ErrUnsupportedScheme = errors.New("storage: unsupported uri scheme")

// Source opens an asset URI. A non-positive size means the size is unknown.
type Source interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, int64, error)
}

// Mux dispatches URIs to the Source registered for their scheme.
type Mux struct {
	sources map[string]Source
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{sources: make(map[string]Source)}
}

// Handle registers src for scheme. Bare paths use the empty scheme.
func (m *Mux) Handle(scheme string, src Source) {
	m.sources[strings.ToLower(scheme)] = src
}

// Open implements Source.
func (m *Mux) Open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	scheme, err := Scheme(uri)
	if err != nil {
		return nil, 0, err
	}
	src, ok := m.sources[scheme]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return src.Open(ctx, uri)
}

// Scheme returns the lowercased scheme of uri, or "" for a bare path.
func Scheme(uri string) (string, error) {
	if !strings.Contains(uri, "://") {
		return "", nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("storage: parse uri: %w", err)
	}
	return strings.ToLower(u.Scheme), nil
}
