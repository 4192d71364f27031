package archive

import (
	"archive/tar"
	"bytes"
	"compress/bzip2"
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"augeias/pkg/apperr"
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	zstdMagic  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	bzip2Magic = []byte("BZh")
)

// openTar unwraps an optional compression layer and reads the first tar
// header, which is what decides whether data is a tar at all.
func openTar(data []byte) (*tarMembers, error) {
	var (
		r       io.Reader = bytes.NewReader(data)
		release func()
	)
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, formatErr("open gzip", err)
		}
		r = gz
	case bytes.HasPrefix(data, zstdMagic):
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, formatErr("open zstd", err)
		}
		r = dec
		release = dec.Close
	case bytes.HasPrefix(data, bzip2Magic):
		r = bzip2.NewReader(r)
	}

	tr := tar.NewReader(r)
	hdr, err := tr.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		if release != nil {
			release()
		}
		return nil, apperr.Format("archive is neither a zip nor a tar")
	}
	return &tarMembers{tr: tr, pending: hdr, release: release}, nil
}

type tarMembers struct {
	tr      *tar.Reader
	pending *tar.Header
	release func()
	done    bool
}

func (t *tarMembers) Next() (Member, error) {
	for !t.done {
		hdr := t.pending
		t.pending = nil
		if hdr == nil {
			var err error
			hdr, err = t.tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.finish()
				return Member{}, formatErr("read tar header", err)
			}
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := readAllLimited(t.tr, hdr.Size)
		if err != nil {
			t.finish()
			return Member{}, formatErr("read tar entry "+hdr.Name, err)
		}
		return Member{Name: hdr.Name, Data: data}, nil
	}
	t.finish()
	return Member{}, io.EOF
}

func (t *tarMembers) finish() {
	if t.done {
		return
	}
	t.done = true
	if t.release != nil {
		t.release()
	}
}
