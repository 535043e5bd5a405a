// Package s3 keeps invoice exports and seed datasets in an S3-compatible
// bucket such as MinIO.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/flowbit/invoiceql/internal/storage"
)

// S3 refuses presigned URLs valid for longer than seven days.
const maxPresignExpiry = 7 * 24 * time.Hour

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type putRequest struct {
	Bucket      string
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	Kind        storage.ObjectKind
}

type client interface {
	Put(ctx context.Context, req putRequest) (storage.ObjectInfo, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (*url.URL, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	CreateBucket(ctx context.Context, bucket, region string) error
}

// Store maps service keys onto one bucket. Every key is classified before a
// request goes out: exports must follow the dated export layout and are the
// only objects that can be presigned, seed datasets are JSON documents.
type Store struct {
	client client
	bucket string
	root   string
}

var _ storage.ObjectStore = (*Store)(nil)

func New(ctx context.Context, cfg Config) (*Store, error) {
	mc, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewWithClient(cfg.Bucket, cfg.Prefix, mc)
	if err != nil {
		return nil, err
	}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func NewWithClient(bucket, prefix string, c client) (*Store, error) {
	if c == nil {
		return nil, errors.New("s3 client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	root, err := cleanRoot(prefix)
	if err != nil {
		return nil, err
	}
	return &Store{client: c, bucket: bucket, root: root}, nil
}

// objectRef is a validated key: Key is what callers use, Full is the key
// inside the bucket.
type objectRef struct {
	Key  string
	Full string
	Kind storage.ObjectKind
}

func (s *Store) resolve(key string) (objectRef, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return objectRef{}, err
	}
	kind, err := storage.ClassifyKey(cleaned)
	if err != nil {
		return objectRef{}, err
	}
	if kind == storage.KindExport {
		if _, err := storage.ParseExportKey(cleaned); err != nil {
			return objectRef{}, err
		}
	}
	return objectRef{Key: cleaned, Full: path.Join(s.root, cleaned), Kind: kind}, nil
}

// Put uploads an export or a seed dataset. An empty content type defaults to
// the kind's media type; a conflicting one is refused.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	ref, err := s.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	contentType := strings.TrimSpace(opts.ContentType)
	if contentType == "" {
		contentType = ref.Kind.ContentType()
	}
	if contentType != ref.Kind.ContentType() {
		return storage.ObjectInfo{}, fmt.Errorf("%s object %q cannot be stored as %q", ref.Kind, ref.Key, contentType)
	}

	info, err := s.client.Put(ctx, putRequest{
		Bucket:      s.bucket,
		Key:         ref.Full,
		Body:        body,
		Size:        size,
		ContentType: contentType,
		Kind:        ref.Kind,
	})
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload %s %q: %w", ref.Kind, ref.Key, err)
	}
	info.Key = ref.Key
	info.ContentType = contentType
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ref, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.client.Get(ctx, s.bucket, ref.Full)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %q: %w", ref.Kind, ref.Key, err)
	}
	return reader, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	ref, err := s.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.client.Stat(ctx, s.bucket, ref.Full)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("stat %s %q: %w", ref.Kind, ref.Key, err)
	}
	info.Key = ref.Key
	return info, nil
}

// PresignGet hands out a download link for an export.
func (s *Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	ref, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if ref.Kind != storage.KindExport {
		return "", fmt.Errorf("%s object %q cannot be presigned", ref.Kind, ref.Key)
	}
	if expiry <= 0 || expiry > maxPresignExpiry {
		return "", fmt.Errorf("presign expiry %s is outside (0, %s]", expiry, maxPresignExpiry)
	}
	signed, err := s.client.PresignGet(ctx, s.bucket, ref.Full, expiry)
	if err != nil {
		return "", fmt.Errorf("presign export %q: %w", ref.Key, err)
	}
	return signed.String(), nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	switch {
	case err != nil:
		return fmt.Errorf("look up bucket %q: %w", s.bucket, err)
	case exists:
		return nil
	}
	if err := s.client.CreateBucket(ctx, s.bucket, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

func cleanKey(key string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", errors.New("object key is required")
	}
	cleaned := path.Clean(trimmed)
	for _, segment := range strings.Split(cleaned, "/") {
		if segment == ".." || segment == "." {
			return "", fmt.Errorf("object key %q escapes the store root", key)
		}
	}
	return cleaned, nil
}

func cleanRoot(prefix string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(prefix), "/")
	if trimmed == "" {
		return "", nil
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." {
		return "", nil
	}
	for _, segment := range strings.Split(cleaned, "/") {
		if segment == ".." {
			return "", fmt.Errorf("object store prefix %q escapes the bucket", prefix)
		}
	}
	return cleaned, nil
}
