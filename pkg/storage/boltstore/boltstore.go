// Package boltstore implements storage.ObjectStore in a single bbolt file.
//
// Every container is a bucket below the top-level "containers" bucket. It
// holds two nested buckets: "objects" maps object keys to content and
// "mtimes" maps them to the last modification time (unix nanoseconds, big
// endian). An object exists iff it has an mtime; empty content is legal.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"augeias/pkg/apperr"
	"augeias/pkg/storage"
)

// FileName is the database file created inside the data directory.
const FileName = "augeias.bolt"

var (
	containersBucket = []byte("containers")
	objectsBucket    = []byte("objects")
	mtimesBucket     = []byte("mtimes")
)

// Store keeps containers and objects in a bbolt database.
type Store struct {
	db     *bbolt.DB
	path   string
	noSync bool
	log    *zap.Logger
	obs    storage.Observer
	now    func() time.Time
}

type Option func(*Store)

func WithNoSync(noSync bool) Option {
	return func(s *Store) {
		s.noSync = noSync
	}
}

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

// Open opens (or creates) the database in dataDir.
func Open(dataDir string, opts ...Option) (*Store, error) {
	if dataDir == "" {
		return nil, errors.New("no data directory configured")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s := &Store{
		path: filepath.Join(dataDir, FileName),
		log:  zap.NewNop(),
		obs:  storage.NopObserver,
		now:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	db, err := bbolt.Open(s.path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("can't open bbolt at %s: %w", s.path, err)
	}
	db.NoSync = s.noSync
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(containersBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("can't create containers bucket: %w", err)
	}
	s.db = db
	s.log.Info("bolt store opened", zap.String("path", s.path), zap.Bool("no_sync", s.noSync))
	return s, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Backend() string { return "bolt" }

func (s *Store) observe(op string, start time.Time, n int64, err error) {
	s.obs.Observe(op, n, err, time.Since(start))
}

func containerNotFound(container string) error {
	return apperr.NotFoundf("container %q not found", container)
}

func objectNotFound(container, key string) error {
	return apperr.NotFoundf("object %q not found in container %q", key, container)
}

// container returns the bucket of container or a NotFound error.
func container(tx *bbolt.Tx, name string) (*bbolt.Bucket, error) {
	if err := storage.CheckKey("container", name); err != nil {
		return nil, err
	}
	b := tx.Bucket(containersBucket).Bucket([]byte(name))
	if b == nil {
		return nil, containerNotFound(name)
	}
	return b, nil
}

func (s *Store) CreateContainer(_ context.Context, name string) (err error) {
	defer func(start time.Time) { s.observe(storage.OpCreateContainer, start, 0, err) }(time.Now())
	if err = storage.CheckKey("container", name); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		c, err := tx.Bucket(containersBucket).CreateBucketIfNotExists([]byte(name))
		if err != nil {
			return fmt.Errorf("create container bucket: %w", err)
		}
		for _, sub := range [][]byte{objectsBucket, mtimesBucket} {
			if _, err := c.CreateBucketIfNotExists(sub); err != nil {
				return fmt.Errorf("create %s bucket: %w", sub, err)
			}
		}
		return nil
	})
}

func (s *Store) DeleteContainer(_ context.Context, name string) (err error) {
	defer func(start time.Time) { s.observe(storage.OpDeleteContainer, start, 0, err) }(time.Now())
	if err = storage.CheckKey("container", name); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket(containersBucket).DeleteBucket([]byte(name))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return containerNotFound(name)
		}
		return err
	})
}

func (s *Store) ContainerExists(_ context.Context, name string) (bool, error) {
	if err := storage.CheckKey("container", name); err != nil {
		return false, err
	}
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket(containersBucket).Bucket([]byte(name)) != nil
		return nil
	})
	return ok, err
}

func (s *Store) CreateObject(ctx context.Context, containerKey, key string, data any) error {
	return s.put(ctx, containerKey, key, data)
}

func (s *Store) UpdateObject(ctx context.Context, containerKey, key string, data any) error {
	return s.put(ctx, containerKey, key, data)
}

func (s *Store) put(_ context.Context, containerKey, key string, data any) (err error) {
	var n int64
	defer func(start time.Time) { s.observe(storage.OpPut, start, n, err) }(time.Now())

	if err = storage.CheckKey("object", key); err != nil {
		return err
	}
	// Reading the payload outside the write transaction keeps slow request
	// bodies from blocking other writers.
	payload, err := storage.ReadPayload(data)
	if err != nil {
		return err
	}
	mtime := make([]byte, 8)
	binary.BigEndian.PutUint64(mtime, uint64(s.now().UnixNano()))

	err = s.db.Update(func(tx *bbolt.Tx) error {
		c, err := container(tx, containerKey)
		if err != nil {
			return err
		}
		if err := c.Bucket(objectsBucket).Put([]byte(key), payload); err != nil {
			return fmt.Errorf("put object: %w", err)
		}
		return c.Bucket(mtimesBucket).Put([]byte(key), mtime)
	})
	if err == nil {
		n = int64(len(payload))
	}
	return err
}

// view runs f with the content and raw mtime of an object. Both slices are
// only valid inside f, and data may be nil for an empty object.
func (s *Store) view(containerKey, key string, f func(data, mtime []byte) error) error {
	if err := storage.CheckKey("object", key); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		c, err := container(tx, containerKey)
		if err != nil {
			return err
		}
		mtime := c.Bucket(mtimesBucket).Get([]byte(key))
		if mtime == nil {
			return objectNotFound(containerKey, key)
		}
		return f(c.Bucket(objectsBucket).Get([]byte(key)), mtime)
	})
}

func (s *Store) GetObject(_ context.Context, containerKey, key string) (data []byte, err error) {
	defer func(start time.Time) { s.observe(storage.OpGet, start, int64(len(data)), err) }(time.Now())
	err = s.view(containerKey, key, func(v, _ []byte) error {
		data = bytes.Clone(v)
		if data == nil {
			data = []byte{}
		}
		return nil
	})
	return data, err
}

func (s *Store) GetObjectInfo(_ context.Context, containerKey, key string) (info storage.ObjectInfo, err error) {
	defer func(start time.Time) { s.observe(storage.OpHead, start, 0, err) }(time.Now())
	err = s.view(containerKey, key, func(v, mtime []byte) error {
		info.Size = int64(len(v))
		info.MIME = storage.SniffMIME(v)
		if len(mtime) == 8 {
			info.LastModified = time.Unix(0, int64(binary.BigEndian.Uint64(mtime))).UTC()
		}
		return nil
	})
	return info, err
}

func (s *Store) DeleteObject(_ context.Context, containerKey, key string) (err error) {
	defer func(start time.Time) { s.observe(storage.OpDelete, start, 0, err) }(time.Now())
	if err = storage.CheckKey("object", key); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		c, err := container(tx, containerKey)
		if err != nil {
			return err
		}
		mtimes := c.Bucket(mtimesBucket)
		if mtimes.Get([]byte(key)) == nil {
			return objectNotFound(containerKey, key)
		}
		if err := c.Bucket(objectsBucket).Delete([]byte(key)); err != nil {
			return err
		}
		return mtimes.Delete([]byte(key))
	})
}

// ListObjectKeys relies on bbolt iterating keys in byte order.
func (s *Store) ListObjectKeys(_ context.Context, containerKey string) (keys []string, err error) {
	defer func(start time.Time) { s.observe(storage.OpList, start, 0, err) }(time.Now())
	keys = []string{}
	err = s.db.View(func(tx *bbolt.Tx) error {
		c, err := container(tx, containerKey)
		if err != nil {
			return err
		}
		return c.Bucket(mtimesBucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) GetContainerArchive(ctx context.Context, containerKey string, names map[string]string) (data []byte, err error) {
	defer func(start time.Time) { s.observe(storage.OpArchive, start, int64(len(data)), err) }(time.Now())
	return storage.BuildContainerArchive(ctx, s, containerKey, names)
}

var _ storage.ObjectStore = (*Store)(nil)
