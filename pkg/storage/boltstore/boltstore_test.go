package boltstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"augeias/pkg/storage"
	"augeias/pkg/storage/storagetest"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), WithNoSync(true))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.ObjectStore {
		return newStore(t)
	})
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.CreateContainer(ctx, "c"))
	require.NoError(t, s.CreateObject(ctx, "c", "key", []byte("value")))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetObject(ctx, "c", "key")
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}

func TestModificationTime(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	fixed := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.CreateContainer(ctx, "c"))
	require.NoError(t, s.CreateObject(ctx, "c", "k", []byte("v")))
	info, err := s.GetObjectInfo(ctx, "c", "k")
	require.NoError(t, err)
	require.True(t, fixed.Equal(info.LastModified))
	require.Equal(t, "bolt", storage.BackendName(s))
}

func TestGetObjectOwnsBuffer(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.CreateContainer(ctx, "c"))
	require.NoError(t, s.CreateObject(ctx, "c", "k", []byte("abc")))

	got, err := s.GetObject(ctx, "c", "k")
	require.NoError(t, err)
	got[0] = 'z'

	again, err := s.GetObject(ctx, "c", "k")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), again)
}
