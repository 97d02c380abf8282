package photo

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beehive/service/internal/storage"
	"github.com/beehive/service/internal/storage/storagetest"
)

type fakeRow struct {
	url     string
	updated time.Time
}

// fakeRecords is an in-memory RecordStore. Each upsert advances a fake clock
// so updated_at ordering is deterministic.
type fakeRecords struct {
	mu      sync.Mutex
	rows    map[string]fakeRow
	clock   time.Time
	upserts int
	err     error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		rows:  make(map[string]fakeRow),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func rowKey(bucket, name string) string { return bucket + "\x00" + name }

func (f *fakeRecords) Upsert(_ context.Context, bucket, name, url string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.upserts++
	f.clock = f.clock.Add(time.Second)
	f.rows[rowKey(bucket, name)] = fakeRow{url: url, updated: f.clock}
	return &Record{ID: "id-" + name, Bucket: bucket, Name: name, URL: url, UpdatedAt: f.clock}, nil
}

func (f *fakeRecords) GetByName(_ context.Context, bucket, name string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	row, ok := f.rows[rowKey(bucket, name)]
	if !ok {
		return nil, ErrNotFound
	}
	return &Record{ID: "id-" + name, Bucket: bucket, Name: name, URL: row.url, UpdatedAt: row.updated}, nil
}

func (f *fakeRecords) DeleteByName(_ context.Context, bucket, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, rowKey(bucket, name))
	return f.err
}

func (f *fakeRecords) Prune(_ context.Context, bucket, prefix string, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, row := range f.rows {
		b, name, _ := strings.Cut(k, "\x00")
		if b != bucket || !strings.HasPrefix(name, prefix) {
			continue
		}
		if cutoff.IsZero() || row.updated.Before(cutoff) {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

// seed stores a record untouched since long before any sync.
func (f *fakeRecords) seed(bucket, name, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[rowKey(bucket, name)] = fakeRow{url: url}
}

func (f *fakeRecords) url(bucket, name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[rowKey(bucket, name)].url
}

// names lists the record names in bucket, sorted.
func (f *fakeRecords) names(bucket string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.rows))
	for k := range f.rows {
		if b, name, _ := strings.Cut(k, "\x00"); b == bucket {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

const testBucket = "bee-photos"

func newTestService(t *testing.T, store storage.Store, records RecordStore) *Service {
	t.Helper()
	return NewService(store, records, Options{
		DefaultBucket: testBucket,
		Region:        "eu-west-2",
		DefaultACL:    "public-read",
		DownloadDir:   t.TempDir(),
		StoreTimeout:  time.Second,
		ListPageSize:  2,
	}, nil)
}

func TestUpload_ReturnsPublicURL(t *testing.T) {
	store := storagetest.New()
	records := newFakeRecords()
	svc := newTestService(t, store, records)

	url, err := svc.Upload(context.Background(), UploadInput{
		Filename:    "x.jpg",
		Body:        bytes.NewReader([]byte("jpeg bytes")),
		Size:        10,
		ContentType: "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://bee-photos.s3.eu-west-2.amazonaws.com/x.jpg", url)
	assert.True(t, store.Has(testBucket, "x.jpg"))
	assert.Equal(t, "public-read", store.ACL(testBucket, "x.jpg"))
	assert.Equal(t, 1, store.CallCount("Head"), "upload must verify the write")
	assert.Equal(t, url, records.url(testBucket, "x.jpg"))
}

func TestUpload_BucketAndACLOverride(t *testing.T) {
	store := storagetest.New()
	svc := newTestService(t, store, nil)

	url, err := svc.Upload(context.Background(), UploadInput{
		Filename: "/hive/q.jpg",
		Body:     strings.NewReader("queen"),
		Size:     5,
		Bucket:   "other-bucket",
		ACL:      "private",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://other-bucket.s3.eu-west-2.amazonaws.com/hive/q.jpg", url)
	assert.Equal(t, "private", store.ACL("other-bucket", "hive/q.jpg"))
}

func TestUpload_ZeroSizeIsIncomplete(t *testing.T) {
	store := storagetest.New()
	store.DropWrites = true
	records := newFakeRecords()
	svc := newTestService(t, store, records)

	url, err := svc.Upload(context.Background(), UploadInput{
		Filename: "x.jpg",
		Body:     strings.NewReader("lost"),
		Size:     4,
	})
	assert.ErrorIs(t, err, ErrUploadIncomplete)
	assert.Empty(t, url)
	assert.Empty(t, records.names(testBucket), "no record may be created for an incomplete upload")
}

func TestUpload_WriteFailure(t *testing.T) {
	store := storagetest.New()
	boom := errors.New("connection refused")
	store.Fail("Put", boom)
	svc := newTestService(t, store, nil)

	_, err := svc.Upload(context.Background(), UploadInput{Filename: "x.jpg", Body: strings.NewReader("x"), Size: 1})
	assert.ErrorIs(t, err, ErrStoreWriteFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.CallCount("Head"))
}

func TestUpload_VerifyFailure(t *testing.T) {
	store := storagetest.New()
	store.Fail("Head", errors.New("timeout"))
	svc := newTestService(t, store, nil)

	_, err := svc.Upload(context.Background(), UploadInput{Filename: "x.jpg", Body: strings.NewReader("x"), Size: 1})
	assert.ErrorIs(t, err, ErrStoreReadFailed)
}

func TestUpload_InvalidName(t *testing.T) {
	svc := newTestService(t, storagetest.New(), nil)
	for _, name := range []string{"", "  ", "/", "."} {
		_, err := svc.Upload(context.Background(), UploadInput{Filename: name, Body: strings.NewReader("x"), Size: 1})
		assert.ErrorIs(t, err, ErrInvalidInput, "filename %q", name)
	}
}

func TestUpload_MetadataFailureStillReturnsURL(t *testing.T) {
	records := newFakeRecords()
	records.err = errors.New("db down")
	svc := newTestService(t, storagetest.New(), records)

	url, err := svc.Upload(context.Background(), UploadInput{Filename: "x.jpg", Body: strings.NewReader("x"), Size: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, url)
}

func TestDownload_WritesLocalFile(t *testing.T) {
	store := storagetest.New()
	store.Seed(testBucket, "hive/bee.jpg", []byte("stripes"))
	svc := newTestService(t, store, nil)

	path, err := svc.Download(context.Background(), "hive/bee.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(svc.opts.DownloadDir, "hive", "bee.jpg"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "stripes", string(data))
}

func TestDownload_MissingKeyCreatesNothing(t *testing.T) {
	svc := newTestService(t, storagetest.New(), nil)

	path, err := svc.Download(context.Background(), "missing.jpg", "")
	assert.ErrorIs(t, err, ErrStoreReadFailed)
	assert.True(t, storage.IsNotFound(err))
	assert.Empty(t, path)

	entries, err := os.ReadDir(svc.opts.DownloadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownload_RejectsEscapingKeys(t *testing.T) {
	store := storagetest.New()
	svc := newTestService(t, store, nil)

	for _, name := range []string{"", "../etc/passwd", "/abs.jpg", "a/../../b"} {
		_, err := svc.Download(context.Background(), name, "")
		assert.ErrorIs(t, err, ErrInvalidInput, "name %q", name)
	}
	assert.Equal(t, 0, store.CallCount("Get"))
}

func TestList_AllPages(t *testing.T) {
	store := storagetest.New()
	for _, k := range []string{"a/1.jpg", "a/2.jpg", "b/3.jpg"} {
		store.Seed(testBucket, k, []byte("x"))
	}
	svc := newTestService(t, store, nil)

	keys, err := svc.List(context.Background(), ListInput{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1.jpg", "a/2.jpg", "b/3.jpg"}, keys)
	assert.Equal(t, 2, store.CallCount("ListPage"))
}

func TestList_EmptyIsNotNil(t *testing.T) {
	svc := newTestService(t, storagetest.New(), nil)
	keys, err := svc.List(context.Background(), ListInput{})
	require.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Empty(t, keys)
}

func TestList_Failure(t *testing.T) {
	store := storagetest.New()
	store.Fail("ListPage", errors.New("boom"))
	svc := newTestService(t, store, nil)

	_, err := svc.List(context.Background(), ListInput{})
	assert.ErrorIs(t, err, ErrStoreReadFailed)
}

func TestList_InvalidPattern(t *testing.T) {
	svc := newTestService(t, storagetest.New(), nil)
	_, err := svc.List(context.Background(), ListInput{Pattern: "[bad"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestStat(t *testing.T) {
	store := storagetest.New()
	store.Seed(testBucket, "bee.jpg", []byte("12345"))
	svc := newTestService(t, store, nil)

	p, err := svc.Stat(context.Background(), "bee.jpg", "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.Size)
	assert.Equal(t, "https://bee-photos.s3.eu-west-2.amazonaws.com/bee.jpg", p.URL)

	_, err = svc.Stat(context.Background(), "nope.jpg", "")
	assert.True(t, storage.IsNotFound(err))
}

func TestDelete_RemovesObjectAndRecord(t *testing.T) {
	store := storagetest.New()
	store.Seed(testBucket, "bee.jpg", []byte("x"))
	records := newFakeRecords()
	records.seed(testBucket, "bee.jpg", "u")
	svc := newTestService(t, store, records)

	require.NoError(t, svc.Delete(context.Background(), "bee.jpg", ""))
	assert.False(t, store.Has(testBucket, "bee.jpg"))
	assert.Empty(t, records.names(testBucket))

	// Deleting again is not an error.
	require.NoError(t, svc.Delete(context.Background(), "bee.jpg", ""))
}

func TestDelete_StoreFailure(t *testing.T) {
	store := storagetest.New()
	store.Fail("Delete", &storage.StoreError{Op: "Delete", Kind: storage.ErrAccessDenied, Err: errors.New("AccessDenied")})
	svc := newTestService(t, store, nil)

	err := svc.Delete(context.Background(), "bee.jpg", "")
	assert.ErrorIs(t, err, ErrStoreWriteFailed)
	assert.ErrorIs(t, err, storage.ErrAccessDenied)
}

func TestSync_UpsertsEveryKey(t *testing.T) {
	store := storagetest.New()
	for _, k := range []string{"a/1.jpg", "a/2.jpg", "b/3.jpg"} {
		store.Seed(testBucket, k, []byte("x"))
	}
	records := newFakeRecords()
	svc := newTestService(t, store, records)

	report, err := svc.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Listed)
	assert.Equal(t, 3, report.Upserted)
	assert.Equal(t, []string{"a/1.jpg", "a/2.jpg", "b/3.jpg"}, records.names(testBucket))
	assert.Equal(t, "https://bee-photos.s3.eu-west-2.amazonaws.com/b/3.jpg", records.url(testBucket, "b/3.jpg"))

	// A second run does not add rows.
	_, err = svc.Sync(context.Background(), SyncOptions{})
	require.NoError(t, err)
	assert.Len(t, records.names(testBucket), 3)
	assert.Equal(t, 6, records.upserts)
}

func TestSync_Prune(t *testing.T) {
	store := storagetest.New()
	store.Seed(testBucket, "a/1.jpg", []byte("x"))
	records := newFakeRecords()
	records.seed(testBucket, "a/gone.jpg", "u")
	records.seed(testBucket, "b/kept.jpg", "u")
	svc := newTestService(t, store, records)

	report, err := svc.Sync(context.Background(), SyncOptions{Prefix: "/a/", Prune: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Pruned)
	assert.Equal(t, []string{"a/1.jpg", "b/kept.jpg"}, records.names(testBucket))
}

func TestSync_RequiresMetadata(t *testing.T) {
	svc := newTestService(t, storagetest.New(), nil)
	_, err := svc.Sync(context.Background(), SyncOptions{})
	assert.ErrorIs(t, err, ErrMetadataUnavailable)
}

func TestKeyFromFilename(t *testing.T) {
	key, err := KeyFromFilename(" /bees/x.jpg ")
	require.NoError(t, err)
	assert.Equal(t, "bees/x.jpg", key)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "incomplete", outcome(ErrUploadIncomplete))
	assert.Equal(t, "invalid", outcome(ErrInvalidInput))
	assert.Equal(t, "write_failed", outcome(ErrStoreWriteFailed))
	assert.Equal(t, "error", outcome(errors.New("x")))
}

func TestRecords_ScopedByBucket(t *testing.T) {
	store := storagetest.New()
	records := newFakeRecords()
	svc := newTestService(t, store, records)
	ctx := context.Background()

	for _, bucket := range []string{"", "other-bucket"} {
		_, err := svc.Upload(ctx, UploadInput{Filename: "queen.jpg", Body: strings.NewReader("q"), Size: 1, Bucket: bucket})
		require.NoError(t, err)
	}
	assert.Equal(t, "https://bee-photos.s3.eu-west-2.amazonaws.com/queen.jpg", records.url(testBucket, "queen.jpg"))
	assert.Equal(t, "https://other-bucket.s3.eu-west-2.amazonaws.com/queen.jpg", records.url("other-bucket", "queen.jpg"))

	// Deleting in a bucket that never held the key leaves both records.
	require.NoError(t, svc.Delete(ctx, "queen.jpg", "third-bucket"))
	assert.Equal(t, []string{"queen.jpg"}, records.names(testBucket))
	assert.Equal(t, []string{"queen.jpg"}, records.names("other-bucket"))

	// Deleting in the default bucket leaves the other bucket's record.
	require.NoError(t, svc.Delete(ctx, "queen.jpg", ""))
	assert.Empty(t, records.names(testBucket))
	assert.Equal(t, []string{"queen.jpg"}, records.names("other-bucket"))
}

func TestSync_PruneLeavesOtherBuckets(t *testing.T) {
	store := storagetest.New()
	store.Seed("other-bucket", "queen.jpg", []byte("q"))
	records := newFakeRecords()
	records.seed("other-bucket", "queen.jpg", "u")
	records.seed(testBucket, "gone.jpg", "u")
	svc := newTestService(t, store, records)

	report, err := svc.Sync(context.Background(), SyncOptions{Prune: true})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Listed)
	assert.Equal(t, int64(1), report.Pruned)
	assert.Empty(t, records.names(testBucket))
	assert.Equal(t, []string{"queen.jpg"}, records.names("other-bucket"))
}

func TestSync_PruneKeepsEveryKeyAcrossPages(t *testing.T) {
	store := storagetest.New()
	for _, k := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"} {
		store.Seed(testBucket, k, []byte("x"))
	}
	records := newFakeRecords()
	records.seed(testBucket, "a.jpg", "old")
	records.seed(testBucket, "stale.jpg", "old")
	svc := newTestService(t, store, records)

	report, err := svc.Sync(context.Background(), SyncOptions{Prune: true})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Upserted)
	assert.Equal(t, int64(1), report.Pruned)
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"}, records.names(testBucket))
	assert.Equal(t, 3, store.CallCount("ListPage"))
}

func TestStat_IncludesRecord(t *testing.T) {
	store := storagetest.New()
	store.Seed(testBucket, "bee.jpg", []byte("x"))
	store.Seed(testBucket, "unsynced.jpg", []byte("x"))
	records := newFakeRecords()
	records.seed(testBucket, "bee.jpg", "https://recorded")
	svc := newTestService(t, store, records)

	p, err := svc.Stat(context.Background(), "bee.jpg", "")
	require.NoError(t, err)
	require.NotNil(t, p.Record)
	assert.Equal(t, "https://recorded", p.Record.URL)
	assert.Equal(t, testBucket, p.Record.Bucket)

	p, err = svc.Stat(context.Background(), "unsynced.jpg", "")
	require.NoError(t, err)
	assert.Nil(t, p.Record)

	records.err = errors.New("db down")
	p, err = svc.Stat(context.Background(), "bee.jpg", "")
	require.NoError(t, err, "a metadata failure must not hide the object")
	assert.Nil(t, p.Record)
}
