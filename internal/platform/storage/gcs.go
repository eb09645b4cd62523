package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

const defaultSignedURLExpiry = 7 * 24 * time.Hour

// GCSStore keeps documents in a Cloud Storage bucket under an optional prefix.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
	expiry time.Duration
	now    func() time.Time
}

// GCSOption customises a GCSStore.
type GCSOption func(*GCSStore)

// WithPrefix stores every object under prefix.
func WithPrefix(prefix string) GCSOption {
	return func(s *GCSStore) { s.prefix = strings.Trim(prefix, "/") }
}

// WithSignedURLExpiry sets how long document links stay valid. V4 signing caps it at 7 days.
func WithSignedURLExpiry(d time.Duration) GCSOption {
	return func(s *GCSStore) {
		if d > 0 && d <= defaultSignedURLExpiry {
			s.expiry = d
		}
	}
}

// WithClock injects the time source used for URL expiry.
func WithClock(clock func() time.Time) GCSOption {
	return func(s *GCSStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewGCSStore wraps an existing client.
func NewGCSStore(client *gcs.Client, bucket string, opts ...GCSOption) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("storage: gcs client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	store := &GCSStore{client: client, bucket: bucket, expiry: defaultSignedURLExpiry, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *GCSStore) object(rel string) string {
	if s.prefix == "" {
		return rel
	}
	return s.prefix + "/" + rel
}

// Put writes body to the object at name.
func (s *GCSStore) Put(ctx context.Context, name string, body io.Reader, _ int64, contentType string) error {
	rel, err := CleanPath(name)
	if err != nil || rel == "" {
		return ErrInvalidPath
	}
	w := s.client.Bucket(s.bucket).Object(s.object(rel)).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "private, no-store"
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: gcs write %s: %w", rel, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: gcs close %s: %w", rel, err)
	}
	return nil
}

// List returns the direct children of dir, using "/" as the delimiter.
func (s *GCSStore) List(ctx context.Context, dir string) ([]Entry, error) {
	rel, err := CleanPath(dir)
	if err != nil {
		return nil, err
	}
	prefix := s.object(rel)
	if prefix != "" {
		prefix += "/"
	}
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: prefix, Delimiter: "/"})
	var entries []Entry
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("storage: gcs list %q: %w", rel, err)
		}
		if attrs.Prefix != "" {
			name := path.Base(strings.TrimSuffix(attrs.Prefix, "/"))
			entries = append(entries, Entry{Name: name, Path: joinRel(rel, name), IsDir: true})
			continue
		}
		name := path.Base(attrs.Name)
		entries = append(entries, Entry{
			Name:       name,
			Path:       joinRel(rel, name),
			Size:       attrs.Size,
			ModifiedAt: attrs.Updated,
		})
	}
	SortEntries(entries)
	return entries, nil
}

// Open streams an object.
func (s *GCSStore) Open(ctx context.Context, name string) (Object, error) {
	rel, err := CleanPath(name)
	if err != nil || rel == "" {
		return Object{}, ErrInvalidPath
	}
	r, err := s.client.Bucket(s.bucket).Object(s.object(rel)).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	if err != nil {
		return Object{}, fmt.Errorf("storage: gcs read %s: %w", rel, err)
	}
	contentType := r.Attrs.ContentType
	if contentType == "" {
		contentType = ContentTypeFor(rel)
	}
	return Object{Body: r, Size: r.Attrs.Size, ContentType: contentType}, nil
}

// URL returns a V4 signed GET URL. Credentials are detected from the client environment.
func (s *GCSStore) URL(_ context.Context, name string) (string, error) {
	rel, err := CleanPath(name)
	if err != nil || rel == "" {
		return "", ErrInvalidPath
	}
	signed, err := s.client.Bucket(s.bucket).SignedURL(s.object(rel), &gcs.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: s.now().Add(s.expiry),
		Scheme:  gcs.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("storage: sign url: %w", err)
	}
	return signed, nil
}

// Ping reads the bucket attributes.
func (s *GCSStore) Ping(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("storage: gcs bucket %s: %w", s.bucket, err)
	}
	return nil
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
