package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// Local opens file:// URIs and bare filesystem paths.
type Local struct{}

// Open implements Source.
func (Local) Open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	path := uri
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return nil, 0, fmt.Errorf("local storage: parse %s: %w", uri, err)
		}
		path = u.Path
	}
	if path == "" {
		return nil, 0, fmt.Errorf("local storage: empty path in %q", uri)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("local storage: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("local storage: stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("local storage: %s is a directory", path)
	}
	return f, info.Size(), nil
}
