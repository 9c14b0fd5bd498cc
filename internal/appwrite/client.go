// Package appwrite is a small REST client for the Appwrite account, databases,
// storage and avatars services.
package appwrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultChunkSize is the largest payload Appwrite accepts in a single upload request.
	DefaultChunkSize int64 = 5 * 1024 * 1024

	responseFormat = "1.5.0"
	sdkName        = "aora-go"
	sdkVersion     = "1.0.0"
)

// Observer receives timing information for every remote call.
type Observer interface {
	ObserveRemoteCall(route string, status int, duration time.Duration)
}

// Config describes how to reach an Appwrite project.
type Config struct {
	Endpoint   string
	ProjectID  string
	AppID      string
	Platform   string
	APIKey     string
	ChunkSize  int64
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Observer   Observer
	Logger     *slog.Logger
}

// Client issues requests against a single Appwrite project. A Client caches
// the secret of the session it created, and sends it on every later call.
type Client struct {
	endpoint   *url.URL
	projectID  string
	origin     string
	apiKey     string
	chunkSize  int64
	httpClient *http.Client
	limiter    *rate.Limiter
	observer   Observer
	logger     *slog.Logger

	session *sessionCache
}

type sessionCache struct {
	mu     sync.RWMutex
	secret string
}

func (s *sessionCache) get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secret
}

func (s *sessionCache) set(secret string) {
	s.mu.Lock()
	s.secret = secret
	s.mu.Unlock()
}

// New validates cfg and returns a ready Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("appwrite: endpoint is required")
	}
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("appwrite: project id is required")
	}

	endpoint, err := url.Parse(strings.TrimSuffix(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("appwrite: parse endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("appwrite: unsupported endpoint scheme %q", endpoint.Scheme)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 || chunkSize > DefaultChunkSize {
		chunkSize = DefaultChunkSize
	}

	var origin string
	if cfg.AppID != "" {
		platform := cfg.Platform
		if platform == "" {
			platform = "android"
		}
		origin = fmt.Sprintf("appwrite-%s://%s", platform, cfg.AppID)
	}

	return &Client{
		endpoint:   endpoint,
		projectID:  cfg.ProjectID,
		origin:     origin,
		apiKey:     cfg.APIKey,
		chunkSize:  chunkSize,
		httpClient: httpClient,
		limiter:    cfg.Limiter,
		observer:   cfg.Observer,
		logger:     logger,
		session:    &sessionCache{},
	}, nil
}

// WithSession returns a copy of c bound to the given session secret. The copy
// has its own session cache; c is left untouched.
func (c *Client) WithSession(secret string) *Client {
	clone := *c
	clone.session = &sessionCache{secret: secret}
	return &clone
}

// SessionSecret returns the cached session secret, if any.
func (c *Client) SessionSecret() string {
	return c.session.get()
}

// ProjectID returns the project the client talks to.
func (c *Client) ProjectID() string {
	return c.projectID
}

func (c *Client) url(path string, query url.Values) string {
	u := *c.endpoint
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), body)
	if err != nil {
		return nil, fmt.Errorf("appwrite: build request: %w", err)
	}

	req.Header.Set("X-Appwrite-Project", c.projectID)
	req.Header.Set("X-Appwrite-Response-Format", responseFormat)
	req.Header.Set("X-SDK-Name", sdkName)
	req.Header.Set("X-SDK-Version", sdkVersion)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Appwrite-Key", c.apiKey)
	}
	if secret := c.session.get(); secret != "" {
		req.Header.Set("X-Appwrite-Session", secret)
	}

	return req, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("appwrite: encode request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.newRequest(ctx, method, path, nil, body, contentType)
}

// send executes req and decodes a JSON response body into out when out is non-nil.
// route is a stable label for logs and metrics.
func (c *Client) send(req *http.Request, route string, out any) (*http.Response, error) {
	ctx := req.Context()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("appwrite: %s: wait for rate limiter: %w", route, err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.observe(route, 0, duration)
		c.logger.Error("appwrite request failed", "route", route, "error", err, "duration", duration)
		return nil, fmt.Errorf("appwrite: %s: %w", route, err)
	}
	defer resp.Body.Close()

	c.observe(route, resp.StatusCode, duration)
	c.logger.Debug("appwrite request completed", "route", route, "status", resp.StatusCode, "duration", duration)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("appwrite: %s: read response: %w", route, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeError(resp.StatusCode, body)
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("appwrite: %s: decode response: %w", route, err)
		}
	}

	return resp, nil
}

func (c *Client) observe(route string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRemoteCall(route, status, duration)
	}
}
