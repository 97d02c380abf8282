package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore implements Store using a MinIO (or any S3-compatible) backend.
// It is selected when STORAGE_ENDPOINT is set, typically for local development.
type MinioStore struct {
	client *minio.Client
}

var _ Store = (*MinioStore)(nil)

// NewMinioStore creates a MinIO client for endpoint.
func NewMinioStore(endpoint, accessKey, secretKey, region string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioStore{client: client}, nil
}

// EnsureBucket creates bucket when missing. With publicRead, an anonymous
// GetObject policy is attached so public URLs resolve.
func (s *MinioStore) EnsureBucket(ctx context.Context, bucket, region string, publicRead bool) (bool, error) {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, wrapMinioError("BucketExists", bucket, "", err)
	}
	created := false
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return false, wrapMinioError("MakeBucket", bucket, "", err)
		}
		created = true
	}
	if publicRead {
		if err := s.client.SetBucketPolicy(ctx, bucket, publicReadPolicy(bucket)); err != nil {
			return created, wrapMinioError("SetBucketPolicy", bucket, "", err)
		}
	}
	return created, nil
}

// Put streams body to MinIO under key. size must be the exact byte count
// (pass -1 only if the size is genuinely unknown; MinIO will buffer it).
func (s *MinioStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, opts PutOptions) error {
	contentType := opts.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	putOpts := minio.PutObjectOptions{ContentType: contentType}
	if opts.ACL != "" {
		// amz headers in UserMetadata are sent verbatim, not as x-amz-meta-*.
		putOpts.UserMetadata = map[string]string{"x-amz-acl": opts.ACL}
	}
	if _, err := s.client.PutObject(ctx, bucket, key, body, size, putOpts); err != nil {
		return wrapMinioError("Put", bucket, key, err)
	}
	return nil
}

func (s *MinioStore) Head(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, wrapMinioError("Head", bucket, key, err)
	}
	return &ObjectInfo{
		Key:         key,
		Size:        info.Size,
		ContentType: info.ContentType,
		ETag:        strings.Trim(info.ETag, `"`),
	}, nil
}

// Get opens key for reading. minio.Object fetches lazily, so the object is
// stat'ed first to surface a missing key here rather than on first Read.
func (s *MinioStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapMinioError("Get", bucket, key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, wrapMinioError("Get", bucket, key, err)
	}
	return obj, nil
}

// ListPage reads one page through the client's listing channel so ctx bounds
// the request. The continuation token is the last key returned, passed back as
// start-after.
func (s *MinioStore) ListPage(ctx context.Context, bucket string, in ListInput) (*ListPage, error) {
	maxKeys := clampMaxKeys(in.MaxKeys)
	after := in.StartAfter
	if in.ContinuationToken != "" {
		after = in.ContinuationToken
	}

	listCtx, cancel := context.WithCancel(ctx)
	objects := s.client.ListObjects(listCtx, bucket, minio.ListObjectsOptions{
		Prefix:     in.Prefix,
		StartAfter: after,
		MaxKeys:    maxKeys,
		Recursive:  true,
	})
	defer func() {
		cancel()
		// The producer closes the channel once it sees the cancel.
		go func() {
			for range objects {
			}
		}()
	}()

	page := &ListPage{Keys: make([]string, 0, maxKeys)}
	for obj := range objects {
		if obj.Err != nil {
			if ctx.Err() != nil {
				return nil, wrapMinioError("ListPage", bucket, "", ctx.Err())
			}
			return nil, wrapMinioError("ListPage", bucket, "", obj.Err)
		}
		if len(page.Keys) == maxKeys {
			page.Truncated = true
			page.NextToken = page.Keys[len(page.Keys)-1]
			return page, nil
		}
		page.Keys = append(page.Keys, obj.Key)
	}
	if err := ctx.Err(); err != nil {
		return nil, wrapMinioError("ListPage", bucket, "", err)
	}
	return page, nil
}

// Delete removes the object at key from the bucket.
func (s *MinioStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return wrapMinioError("Delete", bucket, key, err)
	}
	return nil
}

func wrapMinioError(op, bucket, key string, err error) error {
	wrapped := &StoreError{Op: op, Bucket: bucket, Key: key, Err: err}
	if code := minio.ToErrorResponse(err).Code; code != "" {
		wrapped.Kind = kindForCode(code)
	} else {
		wrapped.Kind = kindForMessage(err.Error())
	}
	return wrapped
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
