// Package storage defines the container/object store capability shared by
// all backends, together with the helpers every backend uses: the write
// payload guard, content type sniffing, the container archive export and the
// metrics observer hook.
package storage

import (
	"context"
	"time"

	"augeias/pkg/apperr"
)

// ObjectInfo is metadata derived from a stored object.
type ObjectInfo struct {
	Size         int64
	LastModified time.Time
	MIME         string
}

// ObjectStore stores byte objects inside named containers.
//
// Errors are classified with the apperr kinds: a missing container, object
// or member is apperr.ErrNotFound, a rejected argument is
// apperr.ErrValidation. Everything else is an internal failure of the
// backend.
//
// Concurrency Safety: implementations MUST be safe for concurrent use. Two
// concurrent writes of the same key leave one of the two payloads in place,
// never a mix of both.
type ObjectStore interface {
	// CreateContainer creates the container. Creating an existing container is
	// a no-op.
	CreateContainer(ctx context.Context, container string) error
	// DeleteContainer removes the container and every object in it.
	DeleteContainer(ctx context.Context, container string) error
	ContainerExists(ctx context.Context, container string) (bool, error)

	// CreateObject stores data under key. data must be a []byte or an
	// io.Reader; see ReadPayload.
	CreateObject(ctx context.Context, container, key string, data any) error
	// UpdateObject overwrites the object, creating it if needed.
	UpdateObject(ctx context.Context, container, key string, data any) error
	GetObject(ctx context.Context, container, key string) ([]byte, error)
	GetObjectInfo(ctx context.Context, container, key string) (ObjectInfo, error)
	DeleteObject(ctx context.Context, container, key string) error
	// ListObjectKeys returns the keys of the container in ascending order.
	ListObjectKeys(ctx context.Context, container string) ([]string, error)
	// GetContainerArchive returns a zip holding every object of the
	// container. An object is stored under names[key] when present, under its
	// key otherwise.
	GetContainerArchive(ctx context.Context, container string, names map[string]string) ([]byte, error)
}

// SweepResult summarizes one cleanup pass of a backend.
type SweepResult struct {
	TempFilesRemoved int
	DirsRemoved      int
}

// Sweeper is implemented by backends that can leave garbage behind after a
// crash and know how to remove it.
type Sweeper interface {
	Sweep(ctx context.Context, olderThan time.Duration) (SweepResult, error)
}

// BackendName returns the backend identifier of s, or "unknown".
func BackendName(s ObjectStore) string {
	if n, ok := s.(interface{ Backend() string }); ok {
		return n.Backend()
	}
	return "unknown"
}

// CheckKey rejects empty container and object keys.
func CheckKey(what, key string) error {
	if key == "" {
		return apperr.Validationf("%s key must not be empty", what)
	}
	return nil
}
