package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	put    *s3.PutObjectInput
	list   []*s3.ListObjectsV2Input
	pages  []*s3.ListObjectsV2Output
	head   *s3.HeadObjectOutput
	err    error
	delKey string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	return &s3.PutObjectOutput{}, f.err
}

func (f *fakeS3) HeadObject(_ context.Context, _ *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.head, nil
}

func (f *fakeS3) GetObject(_ context.Context, _ *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("wings"))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.list = append(f.list, in)
	if f.err != nil {
		return nil, f.err
	}
	out := f.pages[0]
	f.pages = f.pages[1:]
	return out, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.delKey = aws.ToString(in.Key)
	return &s3.DeleteObjectOutput{}, f.err
}

func TestS3Store_Put(t *testing.T) {
	fake := &fakeS3{}
	store := NewS3StoreFromClient(fake)

	err := store.Put(context.Background(), "bees", "x.jpg", strings.NewReader("abc"), 3, PutOptions{ACL: "public-read"})
	require.NoError(t, err)

	assert.Equal(t, "bees", aws.ToString(fake.put.Bucket))
	assert.Equal(t, "x.jpg", aws.ToString(fake.put.Key))
	assert.Equal(t, int64(3), aws.ToInt64(fake.put.ContentLength))
	assert.Equal(t, types.ObjectCannedACLPublicRead, fake.put.ACL)
	assert.Equal(t, DefaultContentType, aws.ToString(fake.put.ContentType))
}

func TestS3Store_PutUnknownSize(t *testing.T) {
	fake := &fakeS3{}
	store := NewS3StoreFromClient(fake)

	err := store.Put(context.Background(), "bees", "x.jpg", strings.NewReader("abc"), -1, PutOptions{ContentType: "image/jpeg"})
	require.NoError(t, err)
	assert.Nil(t, fake.put.ContentLength)
	assert.Empty(t, fake.put.ACL)
	assert.Equal(t, "image/jpeg", aws.ToString(fake.put.ContentType))
}

func TestS3Store_Head(t *testing.T) {
	fake := &fakeS3{head: &s3.HeadObjectOutput{
		ContentLength: aws.Int64(0),
		ContentType:   aws.String("image/jpeg"),
		ETag:          aws.String(`"d41d8cd98f00b204e9800998ecf8427e"`),
	}}
	info, err := NewS3StoreFromClient(fake).Head(context.Background(), "bees", "x.jpg")
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", info.ETag)
}

func TestS3Store_HeadNotFound(t *testing.T) {
	fake := &fakeS3{err: &types.NotFound{}}
	_, err := NewS3StoreFromClient(fake).Head(context.Background(), "bees", "missing.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3Store_ListPage(t *testing.T) {
	fake := &fakeS3{pages: []*s3.ListObjectsV2Output{{
		Contents:              []types.Object{{Key: aws.String("a/1.jpg")}, {Key: aws.String("a/2.jpg")}},
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("tok"),
	}}}

	page, err := NewS3StoreFromClient(fake).ListPage(context.Background(), "bees", ListInput{
		Prefix:     "a/",
		StartAfter: "a/",
		MaxKeys:    5000,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1.jpg", "a/2.jpg"}, page.Keys)
	assert.True(t, page.Truncated)
	assert.Equal(t, "tok", page.NextToken)

	require.Len(t, fake.list, 1)
	in := fake.list[0]
	assert.Equal(t, "a/", aws.ToString(in.Prefix))
	assert.Equal(t, "a/", aws.ToString(in.StartAfter))
	assert.Nil(t, in.ContinuationToken)
	assert.Equal(t, int32(MaxAllowedKeys), aws.ToInt32(in.MaxKeys))
}

func TestS3Store_GetAndDelete(t *testing.T) {
	fake := &fakeS3{}
	store := NewS3StoreFromClient(fake)

	rc, err := store.Get(context.Background(), "bees", "x.jpg")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "wings", string(data))

	require.NoError(t, store.Delete(context.Background(), "bees", "x.jpg"))
	assert.Equal(t, "x.jpg", fake.delKey)
}
