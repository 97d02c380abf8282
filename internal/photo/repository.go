package photo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a photo record does not exist.
var ErrNotFound = errors.New("photo record not found")

// Repository handles all photo metadata database operations. Records are
// unique per (bucket, name).
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert inserts a record for bucket/name, or refreshes the URL and
// updated_at of the existing one.
func (r *Repository) Upsert(ctx context.Context, bucket, name, url string) (*Record, error) {
	rec := &Record{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO photos (id, bucket, name, url)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (bucket, name) DO UPDATE SET url = EXCLUDED.url, updated_at = NOW()
		 RETURNING id, bucket, name, url, created_at, updated_at`,
		uuid.NewString(), bucket, name, url,
	).Scan(&rec.ID, &rec.Bucket, &rec.Name, &rec.URL, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert photo: %w", err)
	}
	return rec, nil
}

// GetByName fetches the record for an object key in bucket.
func (r *Repository) GetByName(ctx context.Context, bucket, name string) (*Record, error) {
	rec := &Record{}
	err := r.db.QueryRow(ctx,
		`SELECT id, bucket, name, url, created_at, updated_at
		 FROM photos WHERE bucket = $1 AND name = $2`,
		bucket, name,
	).Scan(&rec.ID, &rec.Bucket, &rec.Name, &rec.URL, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get photo by name: %w", err)
	}
	return rec, nil
}

// DeleteByName removes the record for bucket/name. Missing records are not
// an error.
func (r *Repository) DeleteByName(ctx context.Context, bucket, name string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM photos WHERE bucket = $1 AND name = $2`, bucket, name); err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	return nil
}

// Prune deletes records in bucket under prefix last touched before cutoff and
// returns how many rows were removed. A zero cutoff removes every record under
// the prefix.
func (r *Repository) Prune(ctx context.Context, bucket, prefix string, cutoff time.Time) (int64, error) {
	var before *time.Time
	if !cutoff.IsZero() {
		before = &cutoff
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM photos
		 WHERE bucket = $1 AND starts_with(name, $2)
		   AND ($3::timestamptz IS NULL OR updated_at < $3)`,
		bucket, prefix, before,
	)
	if err != nil {
		return 0, fmt.Errorf("prune photos: %w", err)
	}
	return tag.RowsAffected(), nil
}
