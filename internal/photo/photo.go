// Package photo uploads, fetches, lists, and deletes bee photos in object
// storage and keeps their metadata records in step.
package photo

import (
	"errors"
	"time"
)

// Record is the persisted metadata row for a stored photo.
type Record struct {
	ID        string    `json:"id"`
	Bucket    string    `json:"bucket"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Photo describes a stored object as returned by Stat.
type Photo struct {
	Name        string `json:"name"`
	Bucket      string `json:"bucket"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`

	// Record is the metadata row, when one exists.
	Record *Record `json:"record,omitempty"`
}

// SyncReport summarizes a metadata sync run.
type SyncReport struct {
	Bucket   string `json:"bucket"`
	Listed   int    `json:"listed"`
	Upserted int    `json:"upserted"`
	Pruned   int64  `json:"pruned"`
}

var (
	// ErrInvalidInput is returned for requests that cannot name an object.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreWriteFailed is returned when the store rejects a write.
	ErrStoreWriteFailed = errors.New("store write failed")

	// ErrUploadIncomplete is returned when the store accepted a write but the
	// object reads back with zero bytes.
	ErrUploadIncomplete = errors.New("upload incomplete")

	// ErrStoreReadFailed is returned when a read or listing fails.
	ErrStoreReadFailed = errors.New("store read failed")

	// ErrMetadataUnavailable is returned by operations that need the photos
	// table when no database is configured.
	ErrMetadataUnavailable = errors.New("photo metadata store not configured")
)
