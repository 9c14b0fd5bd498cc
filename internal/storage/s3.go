package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aora/backend/internal/config"
)

type downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

// ErrObjectNotAllowed indicates an s3:// URI outside the configured buckets
// or key prefix.
var ErrObjectNotAllowed = errors.New("storage: object location not allowed")

// BucketPolicy restricts the objects S3Source will read. The zero value allows
// nothing.
type BucketPolicy struct {
	Buckets   []string
	KeyPrefix string
}

// PolicyFor returns the policy described by cfg.
func PolicyFor(cfg config.ObjectStoreConfig) BucketPolicy {
	return BucketPolicy{Buckets: cfg.Buckets, KeyPrefix: cfg.KeyPrefix}
}

// Check reports whether uri names an object the policy allows.
func (p BucketPolicy) Check(uri string) error {
	_, _, err := p.locate(uri)
	return err
}

func (p BucketPolicy) locate(uri string) (bucket, key string, err error) {
	bucket, key, err = parseS3URI(uri)
	if err != nil {
		return "", "", err
	}
	if !slices.Contains(p.Buckets, bucket) {
		return "", "", fmt.Errorf("%w: bucket %q", ErrObjectNotAllowed, bucket)
	}
	if slices.Contains(strings.Split(key, "/"), "..") || !strings.HasPrefix(key, p.KeyPrefix) {
		return "", "", fmt.Errorf("%w: key %q", ErrObjectNotAllowed, key)
	}
	return bucket, key, nil
}

// S3Source opens s3://bucket/key URIs allowed by its policy. Objects are
// fetched with parallel ranged GETs into a temporary file that is removed on
// Close.
type S3Source struct {
	downloader downloader
	tempDir    string
	policy     BucketPolicy
}

// NewS3Source configures a downloader targeting the provided object store.
func NewS3Source(ctx context.Context, cfg config.ObjectStoreConfig, tempDir string) (*S3Source, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if strings.TrimSpace(cfg.Endpoint) != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:           cfg.Endpoint,
					SigningRegion: cfg.Region,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	d := manager.NewDownloader(client, func(d *manager.Downloader) {
		if cfg.PartSize > 0 {
			d.PartSize = cfg.PartSize
		}
		if cfg.Concurrency > 0 {
			d.Concurrency = cfg.Concurrency
		}
	})

	return &S3Source{downloader: d, tempDir: tempDir, policy: PolicyFor(cfg)}, nil
}

// Open implements Source.
func (s *S3Source) Open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	bucket, key, err := s.policy.locate(uri)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.CreateTemp(s.tempDir, "aora-s3-*")
	if err != nil {
		return nil, 0, fmt.Errorf("s3 storage: create temp file: %w", err)
	}
	tmp := &tempFile{File: f}

	n, err := s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		tmp.Close()
		return nil, 0, fmt.Errorf("s3 storage download %s/%s: %w", bucket, key, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, 0, fmt.Errorf("s3 storage: rewind %s: %w", f.Name(), err)
	}
	return tmp, n, nil
}

func parseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("s3 storage: parse %s: %w", uri, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("s3 storage: %q is not an s3 uri", uri)
	}
	key = strings.TrimLeft(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("s3 storage: %q needs a bucket and a key", uri)
	}
	return u.Host, key, nil
}

// tempFile deletes itself on Close.
type tempFile struct {
	*os.File
}

func (t *tempFile) Close() error {
	closeErr := t.File.Close()
	if err := os.Remove(t.File.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}
