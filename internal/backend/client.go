// Package backend is the contract layer between the application and the
// remote backend service: identity, asset upload and video post operations.
package backend

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aora/backend/internal/appwrite"
	"github.com/aora/backend/internal/logging"
	"github.com/aora/backend/internal/models"
	"github.com/aora/backend/internal/storage"
)

// Config holds the remote identifiers the Client operates on.
type Config struct {
	DatabaseID        string
	UserCollectionID  string
	VideoCollectionID string
	BucketID          string
}

// Validate reports the first missing identifier.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.DatabaseID) == "":
		return errors.New("backend: database id is required")
	case strings.TrimSpace(c.UserCollectionID) == "":
		return errors.New("backend: user collection id is required")
	case strings.TrimSpace(c.VideoCollectionID) == "":
		return errors.New("backend: video collection id is required")
	case strings.TrimSpace(c.BucketID) == "":
		return errors.New("backend: storage bucket id is required")
	}
	return nil
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the logger used when the context carries none.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAssetOpener sets how UploadedAsset URIs are resolved.
func WithAssetOpener(opener AssetOpener) Option {
	return func(c *Client) {
		if opener != nil {
			c.opener = opener
		}
	}
}

// WithJournal records partially created accounts.
func WithJournal(journal Journal) Option {
	return func(c *Client) { c.journal = journal }
}

// WithMetrics observes every operation.
func WithMetrics(metrics Metrics) Option {
	return func(c *Client) { c.metrics = metrics }
}

// WithIDGenerator replaces the generator of account, document and file ids.
func WithIDGenerator(next func() string) Option {
	return func(c *Client) {
		if next != nil {
			c.newID = next
		}
	}
}

// Client exposes the backend operations. It is safe for concurrent use.
type Client struct {
	cfg     Config
	svc     Services
	logger  *slog.Logger
	opener  AssetOpener
	journal Journal
	metrics Metrics
	newID   func() string

	mu      sync.RWMutex
	session *models.Session
}

// New constructs a Client over the given remote services.
func New(cfg Config, svc Services, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if svc.Accounts == nil || svc.Documents == nil || svc.Files == nil || svc.Avatars == nil {
		return nil, errors.New("backend: all remote services are required")
	}

	c := &Client{
		cfg:    cfg,
		svc:    svc,
		logger: slog.Default(),
		opener: storage.Local{},
		newID:  appwrite.UniqueID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Session returns the session most recently established through this client.
func (c *Client) Session() (models.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return models.Session{}, false
	}
	return *c.session, true
}

func (c *Client) setSession(s *models.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// begin opens a span for op and returns the function that closes it.
func (c *Client) begin(ctx context.Context, op string) (context.Context, func(error)) {
	ctx = logging.EnsureLogger(ctx, c.logger)
	ctx, span := logging.StartSpan(ctx, op)
	start := time.Now()

	return ctx, func(err error) {
		if c.metrics != nil {
			c.metrics.RecordOperation(op, err, time.Since(start))
		}
		span.Finish(err)
	}
}
