package photo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/beehive/service/internal/metrics"
	"github.com/beehive/service/internal/storage"
)

// RecordStore persists photo metadata keyed by bucket and object name.
// *Repository implements it.
type RecordStore interface {
	Upsert(ctx context.Context, bucket, name, url string) (*Record, error)
	GetByName(ctx context.Context, bucket, name string) (*Record, error)
	DeleteByName(ctx context.Context, bucket, name string) error
	Prune(ctx context.Context, bucket, prefix string, cutoff time.Time) (int64, error)
}

// Options configures a Service.
type Options struct {
	DefaultBucket string
	Region        string
	DefaultACL    string
	DownloadDir   string
	// StoreTimeout bounds each store round trip (each listing page counts as one).
	StoreTimeout time.Duration
	ListPageSize int
}

// Service contains the business logic for bee photos. It owns no store
// configuration of its own: the one long-lived Store handle is injected.
type Service struct {
	store   storage.Store
	lister  *storage.Lister
	records RecordStore
	opts    Options
	log     *zap.Logger
}

// NewService creates a photo Service. records may be nil, in which case no
// metadata is written and Sync is unavailable.
func NewService(store storage.Store, records RecordStore, opts Options, log *zap.Logger) *Service {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 30 * time.Second
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = "downloads"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   store,
		lister:  storage.NewLister(store, opts.ListPageSize),
		records: records,
		opts:    opts,
		log:     log,
	}
}

// HasMetadata reports whether a RecordStore is wired.
func (s *Service) HasMetadata() bool {
	return s.records != nil
}

// UploadInput is a file-like payload to store.
type UploadInput struct {
	Filename    string
	Body        io.Reader
	Size        int64
	ContentType string
	Bucket      string
	ACL         string
}

// Upload writes the payload under a key derived from its file name, verifies
// the object reads back non-empty, and returns its public URL. An existing
// object with the same key is overwritten.
func (s *Service) Upload(ctx context.Context, in UploadInput) (url string, err error) {
	start := time.Now()
	defer func() { s.observe("upload", start, err) }()

	key, err := KeyFromFilename(in.Filename)
	if err != nil {
		return "", err
	}
	if in.Body == nil {
		return "", fmt.Errorf("%w: empty body", ErrInvalidInput)
	}
	bucket := s.bucket(in.Bucket)
	acl := in.ACL
	if acl == "" {
		acl = s.opts.DefaultACL
	}
	log := s.log.With(zap.String("bucket", bucket), zap.String("key", key))

	putCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	err = s.store.Put(putCtx, bucket, key, in.Body, in.Size, storage.PutOptions{
		ContentType: in.ContentType,
		ACL:         acl,
	})
	cancel()
	if err != nil {
		log.Error("upload failed", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrStoreWriteFailed, err)
	}

	headCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	info, err := s.store.Head(headCtx, bucket, key)
	cancel()
	if err != nil {
		log.Error("upload verification failed", zap.Error(err))
		return "", fmt.Errorf("%w: verify %q: %w", ErrStoreReadFailed, key, err)
	}
	if info.Size == 0 {
		log.Error("upload landed zero bytes")
		return "", fmt.Errorf("%w: %s/%s has zero bytes after write", ErrUploadIncomplete, bucket, key)
	}

	url = storage.PublicURL(bucket, s.opts.Region, key)
	metrics.ObserveUpload(info.Size)
	log.Info("photo uploaded", zap.Int64("size", info.Size))

	if s.records != nil {
		if _, err := s.records.Upsert(ctx, bucket, key, url); err != nil {
			// The object is stored; the record can be rebuilt by Sync.
			log.Error("record photo metadata", zap.Error(err))
		}
	}
	return url, nil
}

// Download fetches the object named name into the download directory and
// returns the local path. Nothing is created locally if the read fails.
func (s *Service) Download(ctx context.Context, name, bucket string) (path string, err error) {
	start := time.Now()
	defer func() { s.observe("download", start, err) }()

	dest, err := s.localPath(name)
	if err != nil {
		return "", err
	}
	bucket = s.bucket(bucket)

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	body, err := s.store.Get(ctx, bucket, name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStoreReadFailed, err)
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	n, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: write %q: %w", ErrStoreReadFailed, dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("move download into place: %w", err)
	}

	s.log.Info("photo downloaded", zap.String("bucket", bucket), zap.String("key", name),
		zap.String("path", dest), zap.Int64("size", n))
	return dest, nil
}

// ListInput narrows List and Sync.
type ListInput struct {
	Bucket     string
	Prefix     string
	StartAfter string
	Pattern    string
}

// List returns every key in the bucket matching in, walking all pages.
func (s *Service) List(ctx context.Context, in ListInput) (keys []string, err error) {
	start := time.Now()
	defer func() { s.observe("list", start, err) }()

	keys = make([]string, 0)
	err = s.eachKey(ctx, in, func(key string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Stat returns metadata and the public URL for one object.
func (s *Service) Stat(ctx context.Context, name, bucket string) (p *Photo, err error) {
	start := time.Now()
	defer func() { s.observe("stat", start, err) }()

	if name == "" {
		return nil, fmt.Errorf("%w: photo name is required", ErrInvalidInput)
	}
	bucket = s.bucket(bucket)

	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	info, err := s.store.Head(ctx, bucket, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreReadFailed, err)
	}
	p = &Photo{
		Name:        name,
		Bucket:      bucket,
		URL:         storage.PublicURL(bucket, s.opts.Region, name),
		Size:        info.Size,
		ContentType: info.ContentType,
	}
	if s.records != nil {
		rec, err := s.records.GetByName(ctx, bucket, name)
		switch {
		case err == nil:
			p.Record = rec
		case errors.Is(err, ErrNotFound):
			// Not synced yet.
		default:
			s.log.Warn("read photo record", zap.String("bucket", bucket), zap.String("key", name), zap.Error(err))
		}
	}
	return p, nil
}

// Delete removes the object and its metadata record. Deleting a key that does
// not exist succeeds, matching S3 semantics.
func (s *Service) Delete(ctx context.Context, name, bucket string) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()

	if name == "" {
		return fmt.Errorf("%w: photo name is required", ErrInvalidInput)
	}
	bucket = s.bucket(bucket)

	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	err = s.store.Delete(storeCtx, bucket, name)
	cancel()
	if err != nil && !storage.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrStoreWriteFailed, err)
	}
	if s.records != nil {
		if err := s.records.DeleteByName(ctx, bucket, name); err != nil {
			return fmt.Errorf("delete photo record: %w", err)
		}
	}
	s.log.Info("photo deleted", zap.String("bucket", bucket), zap.String("key", name))
	return nil
}

// SyncOptions configures Sync.
type SyncOptions struct {
	Bucket string
	Prefix string
	// Prune deletes records under Prefix whose object was not listed.
	Prune bool
}

// Sync upserts one record per listed key. Records are unique per bucket and
// name, so repeated runs do not duplicate rows. With Prune, records under the
// prefix that this run did not touch are deleted; only the bucket's own
// records are considered.
func (s *Service) Sync(ctx context.Context, opts SyncOptions) (report *SyncReport, err error) {
	start := time.Now()
	defer func() { s.observe("sync", start, err) }()

	if s.records == nil {
		return nil, ErrMetadataUnavailable
	}
	bucket := s.bucket(opts.Bucket)
	report = &SyncReport{Bucket: bucket}

	// cutoff is the earliest updated_at this run wrote, in database time.
	var cutoff time.Time
	err = s.eachKey(ctx, ListInput{Bucket: bucket, Prefix: opts.Prefix}, func(key string) error {
		report.Listed++
		rec, err := s.records.Upsert(ctx, bucket, key, storage.PublicURL(bucket, s.opts.Region, key))
		if err != nil {
			return fmt.Errorf("upsert %q: %w", key, err)
		}
		report.Upserted++
		if cutoff.IsZero() || rec.UpdatedAt.Before(cutoff) {
			cutoff = rec.UpdatedAt
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	if opts.Prune {
		prefix, _ := storage.NormalizeListing(opts.Prefix, "/", "")
		n, err := s.records.Prune(ctx, bucket, prefix, cutoff)
		if err != nil {
			return report, err
		}
		report.Pruned = n
	}

	s.log.Info("photo metadata synced",
		zap.String("bucket", bucket),
		zap.Int("listed", report.Listed),
		zap.Int("upserted", report.Upserted),
		zap.Int64("pruned", report.Pruned))
	return report, nil
}

// eachKey walks the listing, giving every page fetch its own deadline.
func (s *Service) eachKey(ctx context.Context, in ListInput, fn func(key string) error) error {
	it, err := s.lister.List(s.bucket(in.Bucket), storage.ListOptions{
		Prefix:     in.Prefix,
		StartAfter: in.StartAfter,
		Pattern:    in.Pattern,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	for {
		pageCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
		ok := it.Next(pageCtx)
		cancel()
		if !ok {
			break
		}
		if err := fn(it.Key()); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreReadFailed, err)
	}
	return nil
}

func (s *Service) bucket(override string) string {
	if override != "" {
		return override
	}
	return s.opts.DefaultBucket
}

// localPath maps an object key to a path inside the download directory.
func (s *Service) localPath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: photo name is required", ErrInvalidInput)
	}
	rel := filepath.FromSlash(name)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q escapes the download directory", ErrInvalidInput, name)
	}
	return filepath.Join(s.opts.DownloadDir, rel), nil
}

func (s *Service) observe(op string, start time.Time, err error) {
	metrics.ObserveOperation(op, outcome(err), time.Since(start))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrUploadIncomplete):
		return "incomplete"
	case storage.IsNotFound(err):
		return "not_found"
	case errors.Is(err, ErrStoreWriteFailed):
		return "write_failed"
	case errors.Is(err, ErrStoreReadFailed):
		return "read_failed"
	default:
		return "error"
	}
}

// KeyFromFilename derives the object key from an uploaded file's name.
func KeyFromFilename(filename string) (string, error) {
	key := strings.TrimLeft(strings.TrimSpace(filename), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	return key, nil
}
