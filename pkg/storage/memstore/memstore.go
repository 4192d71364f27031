// Package memstore is a non-durable storage.ObjectStore kept in process
// memory, for development and tests.
package memstore

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"augeias/pkg/apperr"
	"augeias/pkg/storage"
)

type object struct {
	data  []byte
	mtime time.Time
}

// Store keeps containers in a map guarded by one RWMutex.
type Store struct {
	mu         sync.RWMutex
	containers map[string]map[string]object
	obs        storage.Observer
	now        func() time.Time
}

type Option func(*Store)

func WithObserver(o storage.Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.obs = o
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		containers: make(map[string]map[string]object),
		obs:        storage.NopObserver,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Backend() string { return "memory" }

func (s *Store) observe(op string, start time.Time, n int64, err error) {
	s.obs.Observe(op, n, err, time.Since(start))
}

// objects returns the container map; s.mu must be held.
func (s *Store) objects(container string) (map[string]object, error) {
	if err := storage.CheckKey("container", container); err != nil {
		return nil, err
	}
	objs, ok := s.containers[container]
	if !ok {
		return nil, apperr.NotFoundf("container %q not found", container)
	}
	return objs, nil
}

func (s *Store) CreateContainer(_ context.Context, container string) (err error) {
	defer func(start time.Time) { s.observe(storage.OpCreateContainer, start, 0, err) }(time.Now())
	if err = storage.CheckKey("container", container); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.containers[container]; !ok {
		s.containers[container] = make(map[string]object)
	}
	return nil
}

func (s *Store) DeleteContainer(_ context.Context, container string) (err error) {
	defer func(start time.Time) { s.observe(storage.OpDeleteContainer, start, 0, err) }(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err = s.objects(container); err != nil {
		return err
	}
	delete(s.containers, container)
	return nil
}

func (s *Store) ContainerExists(_ context.Context, container string) (bool, error) {
	if err := storage.CheckKey("container", container); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.containers[container]
	return ok, nil
}

func (s *Store) CreateObject(ctx context.Context, container, key string, data any) error {
	return s.put(ctx, container, key, data)
}

func (s *Store) UpdateObject(ctx context.Context, container, key string, data any) error {
	return s.put(ctx, container, key, data)
}

func (s *Store) put(_ context.Context, container, key string, data any) (err error) {
	var n int64
	defer func(start time.Time) { s.observe(storage.OpPut, start, n, err) }(time.Now())
	if err = storage.CheckKey("object", key); err != nil {
		return err
	}
	b, err := storage.ReadPayload(data)
	if err != nil {
		return err
	}
	// ReadPayload may hand back the caller's slice.
	b = bytes.Clone(b)
	if b == nil {
		b = []byte{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	objs, err := s.objects(container)
	if err != nil {
		return err
	}
	objs[key] = object{data: b, mtime: s.now()}
	n = int64(len(b))
	return nil
}

func (s *Store) get(container, key string) (object, error) {
	if err := storage.CheckKey("object", key); err != nil {
		return object{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	objs, err := s.objects(container)
	if err != nil {
		return object{}, err
	}
	o, ok := objs[key]
	if !ok {
		return object{}, apperr.NotFoundf("object %q not found in container %q", key, container)
	}
	return o, nil
}

func (s *Store) GetObject(_ context.Context, container, key string) (data []byte, err error) {
	defer func(start time.Time) { s.observe(storage.OpGet, start, int64(len(data)), err) }(time.Now())
	o, err := s.get(container, key)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(o.data), nil
}

func (s *Store) GetObjectInfo(_ context.Context, container, key string) (info storage.ObjectInfo, err error) {
	defer func(start time.Time) { s.observe(storage.OpHead, start, 0, err) }(time.Now())
	o, err := s.get(container, key)
	if err != nil {
		return info, err
	}
	return storage.ObjectInfo{
		Size:         int64(len(o.data)),
		LastModified: o.mtime,
		MIME:         storage.SniffMIME(o.data),
	}, nil
}

func (s *Store) DeleteObject(_ context.Context, container, key string) (err error) {
	defer func(start time.Time) { s.observe(storage.OpDelete, start, 0, err) }(time.Now())
	if err = storage.CheckKey("object", key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	objs, err := s.objects(container)
	if err != nil {
		return err
	}
	if _, ok := objs[key]; !ok {
		return apperr.NotFoundf("object %q not found in container %q", key, container)
	}
	delete(objs, key)
	return nil
}

// ListObjectKeys returns the keys sorted for stable output.
func (s *Store) ListObjectKeys(_ context.Context, container string) (keys []string, err error) {
	defer func(start time.Time) { s.observe(storage.OpList, start, 0, err) }(time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	objs, err := s.objects(container)
	if err != nil {
		return nil, err
	}
	keys = make([]string, 0, len(objs))
	for k := range objs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) GetContainerArchive(ctx context.Context, container string, names map[string]string) (b []byte, err error) {
	defer func(start time.Time) { s.observe(storage.OpArchive, start, int64(len(b)), err) }(time.Now())
	return storage.BuildContainerArchive(ctx, s, container, names)
}
