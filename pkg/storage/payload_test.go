package storage

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"augeias/pkg/apperr"
	"augeias/pkg/archive"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestReadPayload(t *testing.T) {
	got, err := ReadPayload([]byte("abc"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)

	got, err = ReadPayload(strings.NewReader("stream"))
	require.NoError(t, err)
	require.Equal(t, []byte("stream"), got)

	_, err = ReadPayload(failingReader{})
	require.Error(t, err)
	require.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestReadPayloadRejectsText(t *testing.T) {
	for _, v := range []any{"some text", 42, nil} {
		_, err := ReadPayload(v)
		require.ErrorIs(t, err, apperr.ErrValidation, "%T", v)
		require.Equal(t, "data type is not allowed", apperr.Message(err))
	}
}

func TestPayloadStreams(t *testing.T) {
	src := bytes.NewBufferString("body")
	r, err := Payload(src)
	require.NoError(t, err)
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "body", string(b))
}

func TestSniffMIME(t *testing.T) {
	zipData, err := archive.BuildZip([]archive.Member{{Name: "a", Data: []byte("a")}})
	require.NoError(t, err)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

	require.Equal(t, "application/zip", SniffMIME(zipData))
	require.Equal(t, "image/png", SniffMIME(png))
	require.Equal(t, "text/plain", SniffMIME([]byte("plain words")))
	require.Equal(t, DefaultMIME, SniffMIME(nil))
	require.Equal(t, DefaultMIME, SniffMIME([]byte{0x9a, 0x00, 0xc3, 0x11, 0x00, 0x7f}))
}

func TestSniffReaderLimit(t *testing.T) {
	big := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte{0}, 2*SniffLimit)...)
	mt, err := SniffReader(bytes.NewReader(big))
	require.NoError(t, err)
	require.Equal(t, "application/pdf", mt)
}

func TestCheckKey(t *testing.T) {
	require.NoError(t, CheckKey("object", "k"))
	require.ErrorIs(t, CheckKey("object", ""), apperr.ErrValidation)
}
