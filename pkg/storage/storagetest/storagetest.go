// Package storagetest holds the behaviour every storage.ObjectStore
// implementation must show. Backends call Run from their own tests.
package storagetest

import (
	"bytes"
	"context"
	"math/rand"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"augeias/pkg/apperr"
	"augeias/pkg/archive"
	"augeias/pkg/storage"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) storage.ObjectStore

// Run executes the shared suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.ObjectStore)
	}{
		{"CreateContainerIdempotent", testCreateContainerIdempotent},
		{"DeleteContainerRemovesObjects", testDeleteContainerRemovesObjects},
		{"DeleteContainerKeepsSiblings", testDeleteContainerKeepsSiblings},
		{"DeleteMissingContainer", testDeleteMissingContainer},
		{"EmptyKeys", testEmptyKeys},
		{"RoundTrip", testRoundTrip},
		{"ReaderPayload", testReaderPayload},
		{"TextPayloadRejected", testTextPayloadRejected},
		{"UpdateIsUpsert", testUpdateIsUpsert},
		{"MissingContainer", testMissingContainer},
		{"MissingObject", testMissingObject},
		{"ListSorted", testListSorted},
		{"ObjectInfo", testObjectInfo},
		{"BasicLifecycle", testBasicLifecycle},
		{"ContainerArchive", testContainerArchive},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func testCreateContainerIdempotent(t *testing.T, s storage.ObjectStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateContainer(ctx, "c1"))
	require.NoError(t, s.CreateObject(ctx, "c1", "obj", []byte("kept")))
	require.NoError(t, s.CreateContainer(ctx, "c1"))

	ok, err := s.ContainerExists(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.GetObject(ctx, "c1", "obj")
	require.NoError(t, err)
	require.Equal(t, []byte("kept"), got)
}

func testDeleteContainerRemovesObjects(t *testing.T, s storage.ObjectStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateContainer(ctx, "doomed"))
	for _, k := range []string{"one", "two", "three"} {
		require.NoError(t, s.CreateObject(ctx, "doomed", k, []byte(k)))
	}
	require.NoError(t, s.DeleteContainer(ctx, "doomed"))

	ok, err := s.ContainerExists(ctx, "doomed")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.ListObjectKeys(ctx, "doomed")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.GetObject(ctx, "doomed", "one")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	// Recreating must not resurrect old objects.
	require.NoError(t, s.CreateContainer(ctx, "doomed"))
	keys, err := s.ListObjectKeys(ctx, "doomed")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func testDeleteContainerKeepsSiblings(t *testing.T, s storage.ObjectStore) {
	ctx := context.Background()
	for _, c := range []string{"ab", "abcd", "abc"} {
		require.NoError(t, s.CreateContainer(ctx, c))
		require.NoError(t, s.CreateObject(ctx, c, "key", []byte(c)))
	}
	require.NoError(t, s.DeleteContainer(ctx, "ab"))

	for _, c := range []string{"abcd", "abc"} {
		got, err := s.GetObject(ctx, c, "key")
		require.NoError(t, err, c)
		require.Equal(t, []byte(c), got)
	}
}

func testDeleteMissingContainer(t *testing.T, s storage.ObjectStore) {
	err := s.DeleteContainer(context.Background(), "never")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func testEmptyKeys(t *testing.T, s storage.ObjectStore) {
	ctx := context.Background()
	require.ErrorIs(t, s.CreateContainer(ctx, ""), apperr.ErrValidation)
	require.NoError(t, s.CreateContainer(ctx, "c"))
	require.ErrorIs(t, s.CreateObject(ctx, "c", "", []byte("x")), apperr.ErrValidation)
}

func testRoundTrip(t *testing.T, s storage.ObjectStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateContainer(ctx, "rt"))

	rng := rand.New(rand.NewSource(7))
	big := make([]byte, 3<<20)
	rng.Read(big)

	payloads := map[string][]byte{
		"empty":        {},
		"small":        []byte("hello"),
		"binary":       {0, 1, 2, 0xfe, 0xff},
		"big":          big,
		"a/b/../c":     []byte("slashes"),
		"urn:x:1.2":    []byte("colons and dots"),
		"sp ace^caret": []byte("escapes"),
		"ünïcödé":      []byte("utf8"),
	}
	payloads[strings.Repeat("k", 300)] = []byte("long key")
	for k, b := range payloads {
		require.NoError(t, s.CreateObject(ctx, "rt", k, b), k)
	}
	for k, b := range payloads {
		got, err := s.GetObject(ctx, "rt", k)
		require.NoError(t, err, k)
		require.True(t, bytes.Equal(b, got), "payload mismatch for %q", k)
	}
}

func testReaderPayload(t *testing.T, s storage.ObjectStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateContainer(ctx, "c"))
	require.NoError(t, s.CreateObject(ctx, "c", "streamed", bytes.NewBufferString("from a reader")))
	got, err := s.GetObject(ctx, "c", "streamed")
	require.NoError(t, err)
	require.Equal(t, "from a reader", string(got))
}

func testTextPayloadRejected(t *testing.T, s storage.ObjectStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateContainer(ctx, "c"))

	err := s.CreateObject(ctx, "c", "txt", "this is text")
	require.ErrorIs(t, err, apperr.ErrValidation)
	err = s.UpdateObject(ctx, "c", "txt", "this is text")
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.GetObject(ctx, "c", "txt")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func testUpdateIsUpsert(t *testing.T, s storage.ObjectStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateContainer(ctx, "c"))

	require.NoError(t, s.UpdateObject(ctx, "c", "fresh", []byte("v1")))
	require.NoError(t, s.UpdateObject(ctx, "c", "fresh", []byte("version two")))
	require.NoError(t, s.CreateObject(ctx, "c", "fresh", []byte("v3")))

	got, err := s.GetObject(ctx, "c", "fresh")
	require.NoError(t, err)
	require.Equal(t, []byte("v3"), got)

	info, err := s.GetObjectInfo(ctx, "c", "fresh")
	require.NoError(t, err)
	require.EqualValues(t, 2, info.Size)
}

func testMissingContainer(t *testing.T, s storage.ObjectStore) {
	ctx := context.Background()
	require.ErrorIs(t, s.CreateObject(ctx, "NOPE", "x", []byte("x")), apperr.ErrNotFound)
	require.ErrorIs(t, s.UpdateObject(ctx, "NOPE", "x", []byte("x")), apperr.ErrNotFound)
	_, err := s.GetObject(ctx, "NOPE", "x")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.GetObjectInfo(ctx, "NOPE", "x")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.ErrorIs(t, s.DeleteObject(ctx, "NOPE", "x"), apperr.ErrNotFound)
	_, err = s.ListObjectKeys(ctx, "NOPE")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.GetContainerArchive(ctx, "NOPE", nil)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	ok, err := s.ContainerExists(ctx, "NOPE")
	require.NoError(t, err)
	require.False(t, ok)
}

func testMissingObject(t *testing.T, s storage.ObjectStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateContainer(ctx, "C1"))
	_, err := s.GetObject(ctx, "C1", "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.GetObjectInfo(ctx, "C1", "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.ErrorIs(t, s.DeleteObject(ctx, "C1", "nope"), apperr.ErrNotFound)

	// A key that is a prefix of a stored one is still missing.
	require.NoError(t, s.CreateObject(ctx, "C1", "abcdef", []byte("x")))
	_, err = s.GetObject(ctx, "C1", "abcd")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func testListSorted(t *testing.T, s storage.ObjectStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateContainer(ctx, "c"))
	keys := []string{"b", "a", "ab", "abc", "abcd", "z/y", "x.y:z", "ä", "A"}
	for _, k := range keys {
		require.NoError(t, s.CreateObject(ctx, "c", k, []byte(k)))
	}
	got, err := s.ListObjectKeys(ctx, "c")
	require.NoError(t, err)

	want := append([]string(nil), keys...)
	sort.Strings(want)
	require.Equal(t, want, got)
}

func testObjectInfo(t *testing.T, s storage.ObjectStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateContainer(ctx, "c"))

	zipData, err := archive.BuildZip([]archive.Member{{Name: "m", Data: []byte("member")}})
	require.NoError(t, err)
	require.NoError(t, s.CreateObject(ctx, "c", "bundle", zipData))
	require.NoError(t, s.CreateObject(ctx, "c", "note", []byte("just some words")))

	info, err := s.GetObjectInfo(ctx, "c", "bundle")
	require.NoError(t, err)
	require.EqualValues(t, len(zipData), info.Size)
	require.Equal(t, "application/zip", info.MIME)
	require.WithinDuration(t, time.Now(), info.LastModified, time.Minute)

	info, err = s.GetObjectInfo(ctx, "c", "note")
	require.NoError(t, err)
	require.Equal(t, "text/plain", info.MIME)
}

func testBasicLifecycle(t *testing.T, s storage.ObjectStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateContainer(ctx, "C1"))
	require.NoError(t, s.CreateObject(ctx, "C1", "obj1", []byte("hello")))

	got, err := s.GetObject(ctx, "C1", "obj1")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	keys, err := s.ListObjectKeys(ctx, "C1")
	require.NoError(t, err)
	require.Equal(t, []string{"obj1"}, keys)

	require.NoError(t, s.DeleteObject(ctx, "C1", "obj1"))
	keys, err = s.ListObjectKeys(ctx, "C1")
	require.NoError(t, err)
	require.Empty(t, keys)
}

func testContainerArchive(t *testing.T, s storage.ObjectStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateContainer(ctx, "C2"))
	require.NoError(t, s.CreateObject(ctx, "C2", "a", []byte("x")))
	require.NoError(t, s.CreateObject(ctx, "C2", "b", []byte("y")))

	check := func(names map[string]string, want map[string]string) {
		t.Helper()
		data, err := s.GetContainerArchive(ctx, "C2", names)
		require.NoError(t, err)
		r, err := archive.Open(data)
		require.NoError(t, err)
		members, err := archive.Members(r)
		require.NoError(t, err)
		got := make(map[string]string, len(members))
		for _, m := range members {
			got[m.Name] = string(m.Data)
		}
		require.Equal(t, want, got)
	}

	check(map[string]string{}, map[string]string{"a": "x", "b": "y"})
	check(nil, map[string]string{"a": "x", "b": "y"})
	check(map[string]string{"a": "renamed.pdf", "unknown": "ignored"},
		map[string]string{"renamed.pdf": "x", "b": "y"})

	require.NoError(t, s.CreateContainer(ctx, "empty"))
	data, err := s.GetContainerArchive(ctx, "empty", nil)
	require.NoError(t, err)
	require.True(t, archive.IsZip(data))
}
