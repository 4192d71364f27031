package s3store

import (
	"bytes"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

type fakeObject struct {
	data  []byte
	mtime time.Time
}

// fakeS3 is an in-memory bucket covering the calls the store makes.
type fakeS3 struct {
	s3iface.S3API

	mu       sync.Mutex
	bucket   string
	objects  map[string]fakeObject
	pageSize int
	calls    map[string]int
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{
		bucket:   bucket,
		objects:  make(map[string]fakeObject),
		pageSize: 2,
		calls:    make(map[string]int),
	}
}

func (f *fakeS3) checkBucket(b *string) error {
	if aws.StringValue(b) != f.bucket {
		return awserr.New(s3.ErrCodeNoSuchBucket, "no such bucket", nil)
	}
	return nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["put"]++
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.StringValue(in.Key)] = fakeObject{data: data, mtime: time.Now()}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["get"]++
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	o, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	data := o.data
	if r := aws.StringValue(in.Range); r != "" {
		from, to, _ := strings.Cut(strings.TrimPrefix(r, "bytes="), "-")
		lo, _ := strconv.Atoi(from)
		hi, _ := strconv.Atoi(to)
		if hi >= len(data) {
			hi = len(data) - 1
		}
		data = data[lo : hi+1]
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  aws.Time(o.mtime),
	}, nil
}

func (f *fakeS3) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["head"]++
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	o, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New("NotFound", "Not Found", nil)
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(o.data))),
		LastModified:  aws.Time(o.mtime),
	}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	delete(f.objects, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectsWithContext(_ aws.Context, in *s3.DeleteObjectsInput, _ ...request.Option) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete_batch"]++
	if err := f.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.StringValue(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) ListObjectsV2PagesWithContext(_ aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	f.mu.Lock()
	if err := f.checkBucket(in.Bucket); err != nil {
		f.mu.Unlock()
		return err
	}
	f.calls["list"]++
	prefix := aws.StringValue(in.Prefix)
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	f.mu.Unlock()

	for len(keys) > 0 {
		n := min(len(keys), f.pageSize)
		page := &s3.ListObjectsV2Output{}
		for _, k := range keys[:n] {
			page.Contents = append(page.Contents, &s3.Object{Key: aws.String(k)})
		}
		keys = keys[n:]
		if !fn(page, len(keys) == 0) {
			return nil
		}
	}
	return nil
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for k := range f.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
