package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// RetryPolicy configures the single retry policy applied to store calls.
type RetryPolicy struct {
	// MaxAttempts counts the first try. Values below 1 mean one attempt.
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when the configuration leaves fields unset.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     4,
	InitialInterval: 200 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// RetryingStore decorates a Store, retrying transient failures with jittered
// exponential backoff. Permanent failures are returned after the first attempt.
type RetryingStore struct {
	next   Store
	policy RetryPolicy
	log    *zap.Logger
}

var _ Store = (*RetryingStore)(nil)

// WithRetry wraps next with policy.
func WithRetry(next Store, policy RetryPolicy, log *zap.Logger) *RetryingStore {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = DefaultRetryPolicy.MaxInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryingStore{next: next, policy: policy, log: log}
}

func retry[T any](ctx context.Context, s *RetryingStore, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.policy.InitialInterval
	b.MaxInterval = s.policy.MaxInterval

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.policy.MaxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.log.Warn("store call failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Uint("max_attempts", s.policy.MaxAttempts),
				zap.Duration("wait", wait),
				zap.Error(err))
		}),
	)
}

// Put retries only when body can be rewound; otherwise a single attempt is made.
func (s *RetryingStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts PutOptions) error {
	seeker, ok := body.(io.Seeker)
	if !ok {
		return s.next.Put(ctx, bucket, key, body, size, opts)
	}
	first := true
	_, err := retry(ctx, s, "Put", func() (struct{}, error) {
		if !first {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return struct{}{}, fmt.Errorf("rewind body: %w", err)
			}
		}
		first = false
		return struct{}{}, s.next.Put(ctx, bucket, key, body, size, opts)
	})
	return err
}

func (s *RetryingStore) Head(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	return retry(ctx, s, "Head", func() (*ObjectInfo, error) {
		return s.next.Head(ctx, bucket, key)
	})
}

func (s *RetryingStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return retry(ctx, s, "Get", func() (io.ReadCloser, error) {
		return s.next.Get(ctx, bucket, key)
	})
}

func (s *RetryingStore) ListPage(ctx context.Context, bucket string, in ListInput) (*ListPage, error) {
	return retry(ctx, s, "ListPage", func() (*ListPage, error) {
		return s.next.ListPage(ctx, bucket, in)
	})
}

func (s *RetryingStore) Delete(ctx context.Context, bucket, key string) error {
	_, err := retry(ctx, s, "Delete", func() (struct{}, error) {
		return struct{}{}, s.next.Delete(ctx, bucket, key)
	})
	return err
}
