// Package s3store implements storage.ObjectStore on an S3 compatible bucket.
//
// Objects live at <prefix><clean(container)>/<clean(object)>, using the
// pair-tree cleaning so that keys never contain a slash. An empty object at
// <prefix><clean(container)>/ marks an existing container.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"

	"augeias/pkg/apperr"
	"augeias/pkg/storage"
	"augeias/pkg/storage/pairtree"
)

// deleteBatch is the S3 limit of keys per DeleteObjects call.
const deleteBatch = 1000

// Config selects the bucket and the endpoint.
type Config struct {
	Bucket         string
	Prefix         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
}

// Store is an S3 backed object store.
type Store struct {
	client s3iface.S3API
	bucket string
	prefix string
	log    *zap.Logger
	obs    storage.Observer
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func WithObserver(o storage.Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.obs = o
		}
	}
}

// New wraps an existing client.
func New(client s3iface.S3API, bucket, prefix string, opts ...Option) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	s := &Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		log:    zap.NewNop(),
		obs:    storage.NopObserver,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Open creates a client from cfg using the default credential chain.
func Open(cfg Config, opts ...Option) (*Store, error) {
	awsCfg := &aws.Config{
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
	}
	if cfg.Region != "" {
		awsCfg.Region = aws.String(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	s, err := New(s3.New(sess), cfg.Bucket, cfg.Prefix, opts...)
	if err != nil {
		return nil, err
	}
	s.log.Info("s3 store configured",
		zap.String("bucket", cfg.Bucket),
		zap.String("prefix", cfg.Prefix),
		zap.String("endpoint", cfg.Endpoint))
	return s, nil
}

func (s *Store) Backend() string { return "s3" }

func (s *Store) observe(op string, start time.Time, n int64, err error) {
	s.obs.Observe(op, n, err, time.Since(start))
}

func (s *Store) containerPrefix(container string) string {
	return s.prefix + pairtree.Clean(container) + "/"
}

func (s *Store) objectKey(container, key string) string {
	return s.containerPrefix(container) + pairtree.Clean(key)
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

func (s *Store) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("head %s: %w", key, err)
	}
}

func (s *Store) requireContainer(ctx context.Context, container string) error {
	if err := storage.CheckKey("container", container); err != nil {
		return err
	}
	ok, err := s.exists(ctx, s.containerPrefix(container))
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFoundf("container %q not found", container)
	}
	return nil
}

func (s *Store) CreateContainer(ctx context.Context, container string) (err error) {
	defer func(start time.Time) { s.observe(storage.OpCreateContainer, start, 0, err) }(time.Now())
	if err = storage.CheckKey("container", container); err != nil {
		return err
	}
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.containerPrefix(container)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("put container marker: %w", err)
	}
	return nil
}

func (s *Store) DeleteContainer(ctx context.Context, container string) (err error) {
	defer func(start time.Time) { s.observe(storage.OpDeleteContainer, start, 0, err) }(time.Now())
	if err = s.requireContainer(ctx, container); err != nil {
		return err
	}
	var keys []string
	err = s.list(ctx, s.containerPrefix(container), func(key string) {
		keys = append(keys, key)
	})
	if err != nil {
		return err
	}
	// The marker sorts first; delete it last so a failure leaves the
	// container addressable.
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	for len(keys) > 0 {
		n := min(len(keys), deleteBatch)
		ids := make([]*s3.ObjectIdentifier, 0, n)
		for _, k := range keys[:n] {
			ids = append(ids, &s3.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete container objects: %w", err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("delete %s: %s", aws.StringValue(e.Key), aws.StringValue(e.Message))
		}
		keys = keys[n:]
	}
	s.log.Debug("container deleted", zap.String("container", container))
	return nil
}

func (s *Store) ContainerExists(ctx context.Context, container string) (bool, error) {
	if err := storage.CheckKey("container", container); err != nil {
		return false, err
	}
	return s.exists(ctx, s.containerPrefix(container))
}

func (s *Store) CreateObject(ctx context.Context, container, key string, data any) error {
	return s.put(ctx, container, key, data)
}

func (s *Store) UpdateObject(ctx context.Context, container, key string, data any) error {
	return s.put(ctx, container, key, data)
}

func (s *Store) put(ctx context.Context, container, key string, data any) (err error) {
	var n int64
	defer func(start time.Time) { s.observe(storage.OpPut, start, n, err) }(time.Now())
	if err = s.requireContainer(ctx, container); err != nil {
		return err
	}
	if err = storage.CheckKey("object", key); err != nil {
		return err
	}
	payload, err := storage.ReadPayload(data)
	if err != nil {
		return err
	}
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(container, key)),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	n = int64(len(payload))
	return nil
}

func (s *Store) read(ctx context.Context, container, key, rng string) ([]byte, error) {
	if err := s.requireContainer(ctx, container); err != nil {
		return nil, err
	}
	if err := storage.CheckKey("object", key); err != nil {
		return nil, err
	}
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(container, key)),
	}
	if rng != "" {
		in.Range = aws.String(rng)
	}
	out, err := s.client.GetObjectWithContext(ctx, in)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.NotFoundf("object %q not found in container %q", key, container)
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}
	return data, nil
}

func (s *Store) GetObject(ctx context.Context, container, key string) (data []byte, err error) {
	defer func(start time.Time) { s.observe(storage.OpGet, start, int64(len(data)), err) }(time.Now())
	return s.read(ctx, container, key, "")
}

func (s *Store) GetObjectInfo(ctx context.Context, container, key string) (info storage.ObjectInfo, err error) {
	defer func(start time.Time) { s.observe(storage.OpHead, start, 0, err) }(time.Now())
	if err = s.requireContainer(ctx, container); err != nil {
		return info, err
	}
	if err = storage.CheckKey("object", key); err != nil {
		return info, err
	}
	out, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(container, key)),
	})
	if err != nil {
		if isNotFound(err) {
			return info, apperr.NotFoundf("object %q not found in container %q", key, container)
		}
		return info, fmt.Errorf("head object: %w", err)
	}
	info.Size = aws.Int64Value(out.ContentLength)
	info.LastModified = aws.TimeValue(out.LastModified).UTC()
	info.MIME = storage.DefaultMIME
	if info.Size > 0 {
		head, err := s.read(ctx, container, key, fmt.Sprintf("bytes=0-%d", storage.SniffLimit-1))
		if err != nil {
			return info, err
		}
		info.MIME = storage.SniffMIME(head)
	}
	return info, nil
}

func (s *Store) DeleteObject(ctx context.Context, container, key string) (err error) {
	defer func(start time.Time) { s.observe(storage.OpDelete, start, 0, err) }(time.Now())
	if err = s.requireContainer(ctx, container); err != nil {
		return err
	}
	if err = storage.CheckKey("object", key); err != nil {
		return err
	}
	// S3 deletes are idempotent, so existence is checked up front.
	ok, err := s.exists(ctx, s.objectKey(container, key))
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFoundf("object %q not found in container %q", key, container)
	}
	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(container, key)),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// list calls fn for every key below prefix, the prefix itself included.
func (s *Store) list(ctx context.Context, prefix string, fn func(key string)) error {
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, o := range page.Contents {
			fn(aws.StringValue(o.Key))
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix, err)
	}
	return nil
}

func (s *Store) ListObjectKeys(ctx context.Context, container string) (keys []string, err error) {
	defer func(start time.Time) { s.observe(storage.OpList, start, 0, err) }(time.Now())
	if err = s.requireContainer(ctx, container); err != nil {
		return nil, err
	}
	cp := s.containerPrefix(container)
	keys = []string{}
	err = s.list(ctx, cp, func(k string) {
		name := strings.TrimPrefix(k, cp)
		if name == "" {
			return
		}
		key, err := pairtree.Unclean(name)
		if err != nil {
			s.log.Warn("skipping undecodable object key", zap.String("key", k), zap.Error(err))
			return
		}
		keys = append(keys, key)
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) GetContainerArchive(ctx context.Context, container string, names map[string]string) (data []byte, err error) {
	defer func(start time.Time) { s.observe(storage.OpArchive, start, int64(len(data)), err) }(time.Now())
	return storage.BuildContainerArchive(ctx, s, container, names)
}

var _ storage.ObjectStore = (*Store)(nil)
