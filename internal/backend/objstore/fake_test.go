package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeObject struct {
	data        []byte
	contentType string
	meta        map[string]string
	modified    time.Time
}

// fakeBucket is an in-memory API and Presigner for one bucket.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject

	// copyErr, when set, fails every CopyObject.
	copyErr error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string]fakeObject{}}
}

func (b *fakeBucket) put(key, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[key] = fakeObject{data: []byte(body), modified: time.Now().UTC()}
}

func (b *fakeBucket) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func (b *fakeBucket) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		LastModified:  aws.Time(obj.modified),
		Metadata:      obj.meta,
		ETag:          aws.String(`"etag"`),
	}, nil
}

func (b *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
	}, nil
}

func (b *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[aws.ToString(in.Key)] = fakeObject{
		data:        data,
		contentType: aws.ToString(in.ContentType),
		meta:        in.Metadata,
		modified:    time.Now().UTC(),
	}

	return &s3.PutObjectOutput{ETag: aws.String(`"etag"`)}, nil
}

func (b *fakeBucket) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	if b.copyErr != nil {
		return nil, b.copyErr
	}

	src, err := url.PathUnescape(aws.ToString(in.CopySource))
	if err != nil {
		return nil, err
	}

	_, key, _ := strings.Cut(src, "/")

	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	cp := fakeObject{data: bytes.Clone(obj.data), contentType: obj.contentType, meta: obj.meta, modified: time.Now().UTC()}
	if in.MetadataDirective == types.MetadataDirectiveReplace {
		cp.meta = in.Metadata
		cp.contentType = aws.ToString(in.ContentType)
	}

	b.objects[aws.ToString(in.Key)] = cp

	return &s3.CopyObjectOutput{}, nil
}

func (b *fakeBucket) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, aws.ToString(in.Key))

	return &s3.DeleteObjectOutput{}, nil
}

func (b *fakeBucket) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range in.Delete.Objects {
		delete(b.objects, aws.ToString(id.Key))
	}

	return &s3.DeleteObjectsOutput{}, nil
}

// ListObjectsV2 emulates prefix/delimiter listing. Continuation tokens are
// the last key or common prefix returned.
func (b *fakeBucket) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)
	after := aws.ToString(in.ContinuationToken)

	maxKeys := int(aws.ToInt32(in.MaxKeys))
	if maxKeys == 0 {
		maxKeys = 1000
	}

	out := &s3.ListObjectsV2Output{}
	count := 0
	last := ""

	for _, key := range b.keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		entry, isPrefix := key, false

		if delim != "" {
			if i := strings.Index(key[len(prefix):], delim); i >= 0 {
				entry, isPrefix = key[:len(prefix)+i+1], true
			}
		}

		if entry <= after || entry == last {
			continue
		}

		if count == maxKeys {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(last)

			return out, nil
		}

		b.mu.Lock()
		obj := b.objects[key]
		b.mu.Unlock()

		if isPrefix {
			out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(entry)})
		} else {
			out.Contents = append(out.Contents, types.Object{
				Key:          aws.String(key),
				Size:         aws.Int64(int64(len(obj.data))),
				LastModified: aws.Time(obj.modified),
			})
		}

		count++
		last = entry
	}

	out.IsTruncated = aws.Bool(false)

	return out, nil
}

func (b *fakeBucket) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Expires == 0 {
		return nil, errors.New("expiry not set")
	}

	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.example/" + aws.ToString(in.Key) + "?X-Amz-Expires=" + opts.Expires.String(),
		Method: "GET",
	}, nil
}
