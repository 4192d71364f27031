package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"augeias/pkg/apperr"
)

func namesOf(t *testing.T, data []byte) []string {
	t.Helper()
	r, err := Open(data)
	require.NoError(t, err)
	ms, err := Members(r)
	require.NoError(t, err)
	names := make([]string, 0, len(ms))
	for _, m := range ms {
		names = append(names, m.Name)
	}
	return names
}

func buildTar(t *testing.T, members []Member, withDir bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if withDir {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: "sub/", Typeflag: tar.TypeDir, Mode: 0o755}))
	}
	for _, m := range members {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     m.Name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(m.Data)),
		}))
		_, err := tw.Write(m.Data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func TestBuildZipRoundTrip(t *testing.T) {
	in := []Member{
		{Name: "one.txt", Data: []byte("first")},
		{Name: "dir/two.bin", Data: bytes.Repeat([]byte{0, 1, 2}, 1000)},
		{Name: "empty", Data: []byte{}},
	}
	data, err := BuildZip(in)
	require.NoError(t, err)
	require.True(t, IsZip(data))

	r, err := Open(data)
	require.NoError(t, err)
	out, err := Members(r)
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		require.Equal(t, in[i].Name, out[i].Name)
		require.True(t, bytes.Equal(in[i].Data, out[i].Data), "member %s", in[i].Name)
	}

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestBuildZipDeterministic(t *testing.T) {
	in := []Member{{Name: "a", Data: []byte("x")}, {Name: "b", Data: []byte("y")}}
	first, err := BuildZip(in)
	require.NoError(t, err)
	second, err := BuildZip(in)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestBuildZipEmpty(t *testing.T) {
	data, err := BuildZip(nil)
	require.NoError(t, err)
	require.Empty(t, namesOf(t, data))
}

func TestReplaceMember(t *testing.T) {
	src, err := BuildZip([]Member{
		{Name: "a", Data: []byte("alpha")},
		{Name: "b", Data: []byte("beta")},
	})
	require.NoError(t, err)

	out, err := ReplaceMember(src, "a", []byte("gamma"), "c")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"b", "c"}, namesOf(t, out))

	got, err := ExtractMember(out, "c")
	require.NoError(t, err)
	require.Equal(t, []byte("gamma"), got)
	got, err = ExtractMember(out, "b")
	require.NoError(t, err)
	require.Equal(t, []byte("beta"), got)

	_, err = ExtractMember(out, "a")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReplaceMemberCopiesRaw(t *testing.T) {
	src, err := BuildZip([]Member{
		{Name: "keep", Data: bytes.Repeat([]byte("k"), 4096)},
		{Name: "drop", Data: []byte("d")},
	})
	require.NoError(t, err)
	out, err := ReplaceMember(src, "drop", []byte("n"), "new")
	require.NoError(t, err)

	before, err := zip.NewReader(bytes.NewReader(src), int64(len(src)))
	require.NoError(t, err)
	after, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)
	require.Equal(t, "keep", after.File[0].Name)
	require.Equal(t, before.File[0].CRC32, after.File[0].CRC32)
	require.Equal(t, before.File[0].CompressedSize64, after.File[0].CompressedSize64)
	require.Equal(t, before.File[0].Method, after.File[0].Method)
}

func TestReplaceMemberSameName(t *testing.T) {
	src, err := BuildZip([]Member{{Name: "a", Data: []byte("old")}})
	require.NoError(t, err)
	out, err := ReplaceMember(src, "a", []byte("new"), "a")
	require.NoError(t, err)
	got, err := ExtractMember(out, "a")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), got)
}

func TestReplaceMemberDuplicateAllowed(t *testing.T) {
	src, err := BuildZip([]Member{
		{Name: "a", Data: []byte("1")},
		{Name: "b", Data: []byte("2")},
	})
	require.NoError(t, err)
	out, err := ReplaceMember(src, "a", []byte("3"), "b")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "b"}, namesOf(t, out))
}

func TestReplaceMemberErrors(t *testing.T) {
	src, err := BuildZip([]Member{{Name: "a", Data: []byte("1")}})
	require.NoError(t, err)

	_, err = ReplaceMember(src, "missing", []byte("x"), "x")
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Equal(t, "File to replace not found in archive", apperr.Message(err))

	_, err = ReplaceMember([]byte("definitely not a zip"), "a", nil, "a")
	require.ErrorIs(t, err, apperr.ErrFormat)

	tarData := buildTar(t, []Member{{Name: "a", Data: []byte("1")}}, false)
	_, err = ReplaceMember(tarData, "a", nil, "a")
	require.ErrorIs(t, err, apperr.ErrFormat)
}

func TestOpenTar(t *testing.T) {
	members := []Member{
		{Name: "x.txt", Data: []byte("ex")},
		{Name: "sub/y.txt", Data: []byte("why")},
	}
	plain := buildTar(t, members, true)

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, err := gw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	var zs bytes.Buffer
	zw, err := zstd.NewWriter(&zs)
	require.NoError(t, err)
	_, err = zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	for name, data := range map[string][]byte{
		"plain": plain,
		"gzip":  gz.Bytes(),
		"zstd":  zs.Bytes(),
	} {
		t.Run(name, func(t *testing.T) {
			require.False(t, IsZip(data))
			require.Equal(t, []string{"x.txt", "sub/y.txt"}, namesOf(t, data))

			got, err := ExtractMember(data, "sub/y.txt")
			require.NoError(t, err)
			require.Equal(t, []byte("why"), got)

			_, err = ExtractMember(data, "sub/")
			require.ErrorIs(t, err, apperr.ErrNotFound)
		})
	}
}

func TestOpenEmptyTar(t *testing.T) {
	data := buildTar(t, nil, false)
	require.Empty(t, namesOf(t, data))
}

func TestOpenSkipsZipDirectories(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("folder/")
	require.NoError(t, err)
	w, err := zw.Create("folder/file")
	require.NoError(t, err)
	_, err = w.Write([]byte("content"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	require.Equal(t, []string{"folder/file"}, namesOf(t, buf.Bytes()))
}

func TestOpenRejectsUnknownFormat(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":   nil,
		"text":    []byte("hello world"),
		"garbage": bytes.Repeat([]byte{0xff}, 2048),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Open(data)
			require.Error(t, err)
			require.True(t, errors.Is(err, apperr.ErrFormat), "got %v", err)

			_, err = ExtractMember(data, "x")
			require.ErrorIs(t, err, apperr.ErrFormat)
		})
	}
}

func TestExtractMemberFirstMatch(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, body := range []string{"first", "second"} {
		w, err := zw.Create("dup")
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	got, err := ExtractMember(buf.Bytes(), "dup")
	require.NoError(t, err)
	require.Equal(t, []byte("first"), got)
}
