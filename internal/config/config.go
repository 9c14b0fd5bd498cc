package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/pelletier/go-toml/v2"
)

// EnvConfigFile names an optional TOML file read before environment overrides.
const EnvConfigFile = "AORA_CONFIG"

// Config captures the runtime configuration for the aora backend gateway.
type Config struct {
	AppPort         int
	LogLevel        string
	ShutdownTimeout time.Duration

	// DatabaseURL enables the orphaned account journal when set.
	DatabaseURL string

	Appwrite    AppwriteConfig
	Uploads     UploadConfig
	ObjectStore ObjectStoreConfig
	RateLimit   RateLimitConfig
}

// AppwriteConfig locates the remote project and the resources the gateway uses.
type AppwriteConfig struct {
	Endpoint          string
	Platform          string
	AppID             string
	ProjectID         string
	DatabaseID        string
	UserCollectionID  string
	VideoCollectionID string
	BucketID          string
	ChunkSize         int64
	RequestsPerSecond float64
	Timeout           time.Duration

	// APIKey is a secret reference such as "env:AORA_APPWRITE_KEY" or "ssm:/aora/key".
	APIKey string
}

// UploadConfig bounds the assets accepted by the gateway.
type UploadConfig struct {
	MaxUploadSize int64
	TempDir       string
	RemoteTimeout time.Duration
}

// ObjectStoreConfig describes the S3-compatible store that s3:// assets are read from.
type ObjectStoreConfig struct {
	Region      string
	Endpoint    string
	PartSize    int64
	Concurrency int

	// Buckets lists the only buckets assets may be read from. Empty disables
	// s3:// assets entirely.
	Buckets   []string
	KeyPrefix string
}

// RateLimitConfig controls the per-client request limiter of the gateway.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type fileConfig struct {
	AppPort         int    `toml:"app_port"`
	LogLevel        string `toml:"log_level"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	DatabaseURL     string `toml:"database_url"`

	Appwrite struct {
		Endpoint          string  `toml:"endpoint"`
		Platform          string  `toml:"platform"`
		AppID             string  `toml:"app_id"`
		ProjectID         string  `toml:"project_id"`
		DatabaseID        string  `toml:"database_id"`
		UserCollectionID  string  `toml:"user_collection_id"`
		VideoCollectionID string  `toml:"video_collection_id"`
		BucketID          string  `toml:"bucket_id"`
		APIKey            string  `toml:"api_key"`
		ChunkSize         string  `toml:"chunk_size"`
		RequestsPerSecond float64 `toml:"requests_per_second"`
		Timeout           string  `toml:"timeout"`
	} `toml:"appwrite"`

	Uploads struct {
		MaxUploadSize string `toml:"max_upload_size"`
		TempDir       string `toml:"temp_dir"`
		RemoteTimeout string `toml:"remote_timeout"`
	} `toml:"uploads"`

	ObjectStore struct {
		Region      string   `toml:"region"`
		Endpoint    string   `toml:"endpoint"`
		PartSize    string   `toml:"part_size"`
		Concurrency int      `toml:"concurrency"`
		Buckets     []string `toml:"buckets"`
		KeyPrefix   string   `toml:"key_prefix"`
	} `toml:"object_store"`

	RateLimit struct {
		RequestsPerMinute int `toml:"requests_per_minute"`
		Burst             int `toml:"burst"`
	} `toml:"rate_limit"`
}

// Load builds the configuration from defaults, the optional TOML file named by
// AORA_CONFIG, and environment variables, in that order of precedence.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		AppPort:         8080,
		LogLevel:        "info",
		ShutdownTimeout: 15 * time.Second,
		Appwrite: AppwriteConfig{
			Endpoint:          "https://cloud.appwrite.io/v1",
			Platform:          "android",
			AppID:             "com.jsm.aora",
			DatabaseID:        "aora",
			UserCollectionID:  "users",
			VideoCollectionID: "videos",
			BucketID:          "files",
			ChunkSize:         5 * units.MiB,
			RequestsPerSecond: 20,
			Timeout:           60 * time.Second,
		},
		Uploads: UploadConfig{
			MaxUploadSize: 512 * units.MiB,
			RemoteTimeout: 2 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Region:      "us-east-1",
			PartSize:    8 * units.MiB,
			Concurrency: 4,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			Burst:             20,
		},
	}
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setInt(&c.AppPort, fc.AppPort)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.DatabaseURL, fc.DatabaseURL)
	if err := setDuration(&c.ShutdownTimeout, fc.ShutdownTimeout, "shutdown_timeout"); err != nil {
		return err
	}

	aw := fc.Appwrite
	setString(&c.Appwrite.Endpoint, aw.Endpoint)
	setString(&c.Appwrite.Platform, aw.Platform)
	setString(&c.Appwrite.AppID, aw.AppID)
	setString(&c.Appwrite.ProjectID, aw.ProjectID)
	setString(&c.Appwrite.DatabaseID, aw.DatabaseID)
	setString(&c.Appwrite.UserCollectionID, aw.UserCollectionID)
	setString(&c.Appwrite.VideoCollectionID, aw.VideoCollectionID)
	setString(&c.Appwrite.BucketID, aw.BucketID)
	setString(&c.Appwrite.APIKey, aw.APIKey)
	if aw.RequestsPerSecond > 0 {
		c.Appwrite.RequestsPerSecond = aw.RequestsPerSecond
	}
	if err := setSize(&c.Appwrite.ChunkSize, aw.ChunkSize, "appwrite.chunk_size"); err != nil {
		return err
	}
	if err := setDuration(&c.Appwrite.Timeout, aw.Timeout, "appwrite.timeout"); err != nil {
		return err
	}

	setString(&c.Uploads.TempDir, fc.Uploads.TempDir)
	if err := setSize(&c.Uploads.MaxUploadSize, fc.Uploads.MaxUploadSize, "uploads.max_upload_size"); err != nil {
		return err
	}
	if err := setDuration(&c.Uploads.RemoteTimeout, fc.Uploads.RemoteTimeout, "uploads.remote_timeout"); err != nil {
		return err
	}

	setString(&c.ObjectStore.Region, fc.ObjectStore.Region)
	setString(&c.ObjectStore.Endpoint, fc.ObjectStore.Endpoint)
	setInt(&c.ObjectStore.Concurrency, fc.ObjectStore.Concurrency)
	setString(&c.ObjectStore.KeyPrefix, fc.ObjectStore.KeyPrefix)
	if len(fc.ObjectStore.Buckets) > 0 {
		c.ObjectStore.Buckets = fc.ObjectStore.Buckets
	}
	if err := setSize(&c.ObjectStore.PartSize, fc.ObjectStore.PartSize, "object_store.part_size"); err != nil {
		return err
	}

	setInt(&c.RateLimit.RequestsPerMinute, fc.RateLimit.RequestsPerMinute)
	setInt(&c.RateLimit.Burst, fc.RateLimit.Burst)
	return nil
}

func (c *Config) loadEnv() {
	c.AppPort = getInt("AORA_PORT", c.AppPort)
	c.LogLevel = getString("AORA_LOG_LEVEL", c.LogLevel)
	c.ShutdownTimeout = getDuration("AORA_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.DatabaseURL = getString("AORA_DATABASE_URL", c.DatabaseURL)

	c.Appwrite.Endpoint = getString("AORA_APPWRITE_ENDPOINT", c.Appwrite.Endpoint)
	c.Appwrite.Platform = getString("AORA_APPWRITE_PLATFORM", c.Appwrite.Platform)
	c.Appwrite.AppID = getString("AORA_APPWRITE_APP_ID", c.Appwrite.AppID)
	c.Appwrite.ProjectID = getString("AORA_APPWRITE_PROJECT_ID", c.Appwrite.ProjectID)
	c.Appwrite.DatabaseID = getString("AORA_APPWRITE_DATABASE_ID", c.Appwrite.DatabaseID)
	c.Appwrite.UserCollectionID = getString("AORA_APPWRITE_USER_COLLECTION_ID", c.Appwrite.UserCollectionID)
	c.Appwrite.VideoCollectionID = getString("AORA_APPWRITE_VIDEO_COLLECTION_ID", c.Appwrite.VideoCollectionID)
	c.Appwrite.BucketID = getString("AORA_APPWRITE_BUCKET_ID", c.Appwrite.BucketID)
	c.Appwrite.APIKey = getString("AORA_APPWRITE_API_KEY", c.Appwrite.APIKey)
	c.Appwrite.ChunkSize = getSize("AORA_APPWRITE_CHUNK_SIZE", c.Appwrite.ChunkSize)
	c.Appwrite.RequestsPerSecond = getFloat("AORA_APPWRITE_RPS", c.Appwrite.RequestsPerSecond)
	c.Appwrite.Timeout = getDuration("AORA_APPWRITE_TIMEOUT", c.Appwrite.Timeout)

	c.Uploads.MaxUploadSize = getSize("AORA_MAX_UPLOAD_SIZE", c.Uploads.MaxUploadSize)
	c.Uploads.TempDir = getString("AORA_UPLOAD_TEMP_DIR", c.Uploads.TempDir)
	c.Uploads.RemoteTimeout = getDuration("AORA_REMOTE_ASSET_TIMEOUT", c.Uploads.RemoteTimeout)

	c.ObjectStore.Region = getString("AORA_S3_REGION", c.ObjectStore.Region)
	c.ObjectStore.Endpoint = getString("AORA_S3_ENDPOINT", c.ObjectStore.Endpoint)
	c.ObjectStore.PartSize = getSize("AORA_S3_PART_SIZE", c.ObjectStore.PartSize)
	c.ObjectStore.Concurrency = getInt("AORA_S3_CONCURRENCY", c.ObjectStore.Concurrency)
	c.ObjectStore.Buckets = getList("AORA_S3_BUCKETS", c.ObjectStore.Buckets)
	c.ObjectStore.KeyPrefix = getString("AORA_S3_KEY_PREFIX", c.ObjectStore.KeyPrefix)

	c.RateLimit.RequestsPerMinute = getInt("AORA_RATE_LIMIT_PER_MINUTE", c.RateLimit.RequestsPerMinute)
	c.RateLimit.Burst = getInt("AORA_RATE_LIMIT_BURST", c.RateLimit.Burst)
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	var errs []error

	if c.AppPort <= 0 || c.AppPort > 65535 {
		errs = append(errs, fmt.Errorf("app port %d out of range", c.AppPort))
	}

	endpoint, err := url.Parse(c.Appwrite.Endpoint)
	if err != nil || (endpoint.Scheme != "http" && endpoint.Scheme != "https") || endpoint.Host == "" {
		errs = append(errs, fmt.Errorf("appwrite endpoint %q must be an absolute http(s) url", c.Appwrite.Endpoint))
	}

	required := []struct {
		name, value string
	}{
		{"appwrite project id", c.Appwrite.ProjectID},
		{"appwrite database id", c.Appwrite.DatabaseID},
		{"appwrite user collection id", c.Appwrite.UserCollectionID},
		{"appwrite video collection id", c.Appwrite.VideoCollectionID},
		{"appwrite bucket id", c.Appwrite.BucketID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}

	if c.Appwrite.ChunkSize <= 0 || c.Appwrite.ChunkSize > 5*units.MiB {
		errs = append(errs, fmt.Errorf("appwrite chunk size %s must be between 1B and 5MiB", units.BytesSize(float64(c.Appwrite.ChunkSize))))
	}
	if c.Uploads.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("max upload size must be positive"))
	}
	if c.ObjectStore.PartSize < 5*units.MiB {
		errs = append(errs, errors.New("object store part size must be at least 5MiB"))
	}
	if c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate limit values must be positive"))
	}

	return errors.Join(errs...)
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setInt(dst *int, value int) {
	if value != 0 {
		*dst = value
	}
}

func setDuration(dst *time.Duration, value, name string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

func setSize(dst *int64, value, name string) error {
	if value == "" {
		return nil
	}
	size, err := units.RAMInBytes(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = size
	return nil
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getList splits a comma separated variable, dropping blank entries.
func getList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getSize(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	size, err := units.RAMInBytes(value)
	if err != nil {
		return fallback
	}
	return size
}
