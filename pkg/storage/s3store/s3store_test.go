package s3store

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"augeias/pkg/apperr"
	"augeias/pkg/storage"
	"augeias/pkg/storage/storagetest"
)

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.ObjectStore {
		s, err := New(newFakeS3("bkt"), "bkt", "augeias/")
		require.NoError(t, err)
		return s
	})
}

func TestKeyLayout(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3("bkt")
	s, err := New(fake, "bkt", "pre/")
	require.NoError(t, err)

	require.NoError(t, s.CreateContainer(ctx, "ark:/1"))
	require.NoError(t, s.CreateObject(ctx, "ark:/1", "a.b", []byte("x")))
	require.Equal(t, []string{"pre/ark+=1/", "pre/ark+=1/a,b"}, fake.keys())
	require.Equal(t, "s3", storage.BackendName(s))
}

func TestDeleteContainerBatches(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3("bkt")
	s, err := New(fake, "bkt", "")
	require.NoError(t, err)

	require.NoError(t, s.CreateContainer(ctx, "big"))
	for i := 0; i < deleteBatch+5; i++ {
		require.NoError(t, s.CreateObject(ctx, "big", "key"+strconv.Itoa(i), []byte{byte(i)}))
	}
	require.NoError(t, s.DeleteContainer(ctx, "big"))
	require.Empty(t, fake.keys())
	require.Equal(t, 2, fake.calls["delete_batch"])
}

func TestWrongBucket(t *testing.T) {
	s, err := New(newFakeS3("bkt"), "other", "")
	require.NoError(t, err)
	err = s.CreateContainer(context.Background(), "c")
	require.Error(t, err)
	require.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(newFakeS3("bkt"), "", "")
	require.Error(t, err)
}
