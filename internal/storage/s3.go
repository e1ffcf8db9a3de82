package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"weft/internal/services"
)

// S3Options configures an S3-compatible blob store.
type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
	// TempDir spools non-seekable uploads so the SDK can compute length and checksums.
	TempDir string
}

// S3 stores blobs as objects in a bucket.
type S3 struct {
	client  *s3.Client
	bucket  string
	prefix  string
	tempDir string
}

// NewS3 builds an S3 client with static credentials when provided.
func NewS3(_ context.Context, opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "init", "storage.bucket is empty", nil)
	}
	s3opts := s3.Options{
		Region:       opts.Region,
		UsePathStyle: opts.PathStyle,
	}
	if opts.Endpoint != "" {
		s3opts.BaseEndpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKey != "" {
		s3opts.Credentials = credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")
	}
	return &S3{
		client:  s3.New(s3opts),
		bucket:  opts.Bucket,
		prefix:  opts.Prefix,
		tempDir: opts.TempDir,
	}, nil
}

func (s *S3) Kind() string { return "s3" }

func (s *S3) objectKey(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return cleaned, nil
	}
	return path.Join(s.prefix, cleaned), nil
}

func (s *S3) Put(ctx context.Context, key string, body io.Reader, contentType string) (int64, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return 0, err
	}
	seeker, size, cleanup, err := s.seekable(body)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          seeker,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return 0, services.Wrap(services.ErrTransient, "storage", "s3 put", objectKey, err)
	}
	return size, nil
}

// seekable returns body as a ReadSeeker with its length, spooling to disk
// when the caller handed over a plain stream.
func (s *S3) seekable(body io.Reader) (io.ReadSeeker, int64, func(), error) {
	noop := func() {}
	if rs, ok := body.(io.ReadSeeker); ok {
		size, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, noop, fmt.Errorf("measure upload: %w", err)
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, 0, noop, fmt.Errorf("rewind upload: %w", err)
		}
		return rs, size, noop, nil
	}
	spool, err := os.CreateTemp(s.tempDir, "s3-upload-*")
	if err != nil {
		return nil, 0, noop, fmt.Errorf("create upload spool: %w", err)
	}
	cleanup := func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}
	size, err := io.Copy(spool, body)
	if err != nil {
		cleanup()
		return nil, 0, noop, fmt.Errorf("spool upload: %w", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, 0, noop, fmt.Errorf("rewind upload spool: %w", err)
	}
	return spool, size, cleanup, nil
}

func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var missing *s3types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("blob %s: %w", key, services.ErrNotFound)
		}
		return nil, services.Wrap(services.ErrTransient, "storage", "s3 get", objectKey, err)
	}
	return out.Body, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}); err != nil {
		return services.Wrap(services.ErrTransient, "storage", "s3 delete", objectKey, err)
	}
	return nil
}
