package storage

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// ListOptions narrows a bucket listing.
type ListOptions struct {
	Prefix     string
	StartAfter string
	// Delimiter is used only to normalize Prefix and StartAfter; the listing
	// itself is always recursive. Defaults to "/".
	Delimiter string
	// Pattern is an optional doublestar glob (e.g. "**/*.jpg") that yielded
	// keys must match.
	Pattern string
	// PageSize overrides the lister's page size.
	PageSize int
}

// Lister enumerates bucket contents through a Store.
type Lister struct {
	store    Store
	pageSize int
}

// NewLister returns a Lister that requests pageSize keys per page.
func NewLister(store Store, pageSize int) *Lister {
	return &Lister{store: store, pageSize: clampMaxKeys(pageSize)}
}

// List returns a lazy iterator over every key in bucket matching opts. No
// store call is made until the first Next.
func (l *Lister) List(bucket string, opts ListOptions) (*KeyIterator, error) {
	delim := opts.Delimiter
	if delim == "" {
		delim = "/"
	}
	if opts.Pattern != "" && !doublestar.ValidatePattern(opts.Pattern) {
		return nil, fmt.Errorf("invalid list pattern %q", opts.Pattern)
	}
	prefix, startAfter := NormalizeListing(opts.Prefix, delim, opts.StartAfter)

	size := l.pageSize
	if opts.PageSize > 0 {
		size = clampMaxKeys(opts.PageSize)
	}

	return &KeyIterator{
		store:   l.store,
		bucket:  bucket,
		pattern: opts.Pattern,
		input: ListInput{
			Prefix:     prefix,
			StartAfter: startAfter,
			MaxKeys:    size,
		},
	}, nil
}

// KeyIterator is a single forward pass over a paginated listing. Pages are
// fetched on demand. Once Next has returned false the iterator is spent;
// start a new listing to enumerate again.
//
//	it, _ := lister.List(bucket, opts)
//	for it.Next(ctx) {
//		use(it.Key())
//	}
//	if err := it.Err(); err != nil { ... }
type KeyIterator struct {
	store   Store
	bucket  string
	pattern string
	input   ListInput

	page    []string
	pos     int
	key     string
	started bool
	done    bool
	pages   int
	err     error
}

// Next advances to the next key, fetching a new page when the current one is
// drained. It returns false at the end of the listing or on error.
func (it *KeyIterator) Next(ctx context.Context) bool {
	for {
		if it.done {
			return false
		}
		if it.pos < len(it.page) {
			k := it.page[it.pos]
			it.pos++
			if it.pattern != "" {
				if ok, _ := doublestar.Match(it.pattern, k); !ok {
					continue
				}
			}
			it.key = k
			return true
		}
		if it.started && it.input.ContinuationToken == "" {
			it.finish(nil)
			return false
		}
		if err := it.fetch(ctx); err != nil {
			it.finish(err)
			return false
		}
	}
}

func (it *KeyIterator) fetch(ctx context.Context) error {
	page, err := it.store.ListPage(ctx, it.bucket, it.input)
	if err != nil {
		return err
	}
	it.started = true
	it.pages++
	it.page = page.Keys
	it.pos = 0
	it.input.ContinuationToken = ""
	if page.Truncated {
		it.input.ContinuationToken = page.NextToken
	}
	// StartAfter only applies to the first request.
	it.input.StartAfter = ""
	return nil
}

func (it *KeyIterator) finish(err error) {
	it.done = true
	it.err = err
	it.page = nil
	it.key = ""
}

// Key returns the current key. Valid only after Next returned true.
func (it *KeyIterator) Key() string {
	return it.key
}

// Err returns the error that stopped iteration, if any.
func (it *KeyIterator) Err() error {
	return it.err
}

// Pages returns how many pages have been fetched so far.
func (it *KeyIterator) Pages() int {
	return it.pages
}

// Collect drains it into a slice.
func Collect(ctx context.Context, it *KeyIterator) ([]string, error) {
	keys := make([]string, 0)
	for it.Next(ctx) {
		keys = append(keys, it.Key())
	}
	return keys, it.Err()
}
