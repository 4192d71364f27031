package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"augeias/pkg/storage"
	"augeias/pkg/storage/storagetest"
)

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.ObjectStore { return New() })
}

func TestBufferOwnership(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateContainer(ctx, "c"))

	in := []byte("original")
	require.NoError(t, s.CreateObject(ctx, "c", "obj", in))
	in[0] = 'X'

	out, err := s.GetObject(ctx, "c", "obj")
	require.NoError(t, err)
	require.Equal(t, "original", string(out))
	out[0] = 'Y'

	again, err := s.GetObject(ctx, "c", "obj")
	require.NoError(t, err)
	require.Equal(t, "original", string(again))
}

func TestLastModified(t *testing.T) {
	ctx := context.Background()
	s := New()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	require.NoError(t, s.CreateContainer(ctx, "c"))
	require.NoError(t, s.CreateObject(ctx, "c", "obj", []byte("x")))
	info, err := s.GetObjectInfo(ctx, "c", "obj")
	require.NoError(t, err)
	require.Equal(t, at, info.LastModified)
	require.Equal(t, "memory", storage.BackendName(s))
}
