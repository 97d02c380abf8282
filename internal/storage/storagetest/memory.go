// Package storagetest provides an in-memory storage.Store for tests.
package storagetest

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/beehive/service/internal/storage"
)

// Call records one invocation of the store.
type Call struct {
	Op     string
	Bucket string
	Key    string
	Input  storage.ListInput
	Opts   storage.PutOptions
}

// MemoryStore is a map-backed Store. Listings are returned in lexical key
// order, paged by ListInput.MaxKeys, with the last key of a page as the
// continuation token.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]map[string]object
	calls   []Call

	// Errors injects a failure per op ("Put", "Head", "Get", "ListPage",
	// "Delete"). Each entry is consumed by one call.
	Errors map[string][]error
	// DropWrites makes Put succeed while storing zero bytes.
	DropWrites bool
}

type object struct {
	data        []byte
	contentType string
	acl         string
}

var _ storage.Store = (*MemoryStore)(nil)

// New returns an empty MemoryStore.
func New() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]map[string]object),
		Errors:  make(map[string][]error),
	}
}

// Seed stores key with data.
func (m *MemoryStore) Seed(bucket, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(bucket)[key] = object{data: data}
}

// Has reports whether key exists.
func (m *MemoryStore) Has(bucket, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[bucket][key]
	return ok
}

// ACL returns the canned ACL key was written with.
func (m *MemoryStore) ACL(bucket, key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[bucket][key].acl
}

// Calls returns the recorded calls.
func (m *MemoryStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns the number of recorded calls of op.
func (m *MemoryStore) CallCount(op string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Fail queues err for the next call of op.
func (m *MemoryStore) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[op] = append(m.Errors[op], err)
}

func (m *MemoryStore) bucket(name string) map[string]object {
	b, ok := m.objects[name]
	if !ok {
		b = make(map[string]object)
		m.objects[name] = b
	}
	return b
}

// record logs the call and pops an injected error. Callers hold m.mu.
func (m *MemoryStore) record(c Call) error {
	m.calls = append(m.calls, c)
	if errs := m.Errors[c.Op]; len(errs) > 0 {
		m.Errors[c.Op] = errs[1:]
		return errs[0]
	}
	return nil
}

func (m *MemoryStore) Put(_ context.Context, bucket, key string, body io.Reader, _ int64, opts storage.PutOptions) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Call{Op: "Put", Bucket: bucket, Key: key, Opts: opts}); err != nil {
		return err
	}
	if m.DropWrites {
		data = nil
	}
	m.bucket(bucket)[key] = object{data: data, contentType: opts.ContentType, acl: opts.ACL}
	return nil
}

func (m *MemoryStore) Head(_ context.Context, bucket, key string) (*storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Call{Op: "Head", Bucket: bucket, Key: key}); err != nil {
		return nil, err
	}
	obj, ok := m.objects[bucket][key]
	if !ok {
		return nil, notFound("Head", bucket, key)
	}
	return &storage.ObjectInfo{Key: key, Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (m *MemoryStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Call{Op: "Get", Bucket: bucket, Key: key}); err != nil {
		return nil, err
	}
	obj, ok := m.objects[bucket][key]
	if !ok {
		return nil, notFound("Get", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStore) ListPage(_ context.Context, bucket string, in storage.ListInput) (*storage.ListPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Call{Op: "ListPage", Bucket: bucket, Input: in}); err != nil {
		return nil, err
	}

	after := in.StartAfter
	if in.ContinuationToken != "" {
		after = in.ContinuationToken
	}
	keys := make([]string, 0, len(m.objects[bucket]))
	for k := range m.objects[bucket] {
		if strings.HasPrefix(k, in.Prefix) && (after == "" || k > after) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	size := in.MaxKeys
	if size <= 0 {
		size = storage.DefaultMaxKeys
	}
	page := &storage.ListPage{}
	if len(keys) > size {
		keys = keys[:size]
		page.Truncated = true
		page.NextToken = keys[size-1]
	}
	page.Keys = keys
	return page, nil
}

func (m *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(Call{Op: "Delete", Bucket: bucket, Key: key}); err != nil {
		return err
	}
	delete(m.objects[bucket], key)
	return nil
}

func notFound(op, bucket, key string) error {
	return &storage.StoreError{Op: op, Bucket: bucket, Key: key, Kind: storage.ErrNotFound, Err: storage.ErrNotFound}
}

// PagedStore serves fixed pages regardless of input, for exercising
// pagination order.
type PagedStore struct {
	storage.Store
	Pages [][]string

	mu    sync.Mutex
	calls int
}

// ListPage returns Pages[token].
func (p *PagedStore) ListPage(_ context.Context, _ string, in storage.ListInput) (*storage.ListPage, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	idx := 0
	if in.ContinuationToken != "" {
		n, err := strconv.Atoi(in.ContinuationToken)
		if err != nil {
			return nil, err
		}
		idx = n
	}
	if idx >= len(p.Pages) {
		return &storage.ListPage{}, nil
	}
	page := &storage.ListPage{Keys: p.Pages[idx]}
	if idx+1 < len(p.Pages) {
		page.Truncated = true
		page.NextToken = strconv.Itoa(idx + 1)
	}
	return page, nil
}

// ListCalls returns how many pages were requested.
func (p *PagedStore) ListCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
