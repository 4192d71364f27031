// Package archive builds, reads and edits the zip and tar blobs kept as
// objects in the store.
//
// All functions work on fully buffered byte slices: archives are held in
// memory for the duration of a call.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"augeias/pkg/apperr"
)

// Member is one named entry of an archive together with its content.
type Member struct {
	Name string
	Data []byte
}

// Reader yields the regular-file members of an archive one at a time.
// Next returns io.EOF after the last member. A Reader is single pass; open
// the source bytes again to restart.
type Reader interface {
	Next() (Member, error)
}

// Open detects whether data is a zip or a (optionally gzip, bzip2 or zstd
// compressed) tar and returns a Reader over its members. Anything else is an
// apperr.ErrFormat error.
func Open(data []byte) (Reader, error) {
	if len(data) == 0 {
		return nil, apperr.Format("empty archive")
	}
	if zr, err := openZip(data); err == nil {
		return &zipMembers{files: zr.File}, nil
	}
	tr, err := openTar(data)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

// ExtractMember returns the content of the first member named name.
func ExtractMember(data []byte, name string) ([]byte, error) {
	r, err := Open(data)
	if err != nil {
		return nil, err
	}
	for {
		m, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil, apperr.NotFoundf("member not found: %s", name)
		}
		if err != nil {
			return nil, err
		}
		if m.Name == name {
			return m.Data, nil
		}
	}
}

// Members drains r into a slice.
func Members(r Reader) ([]Member, error) {
	var out []Member
	for {
		m, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
}

func formatErr(op string, err error) error {
	return apperr.Wrap(apperr.ErrFormat, fmt.Errorf("%s: %w", op, err))
}

func readAllLimited(r io.Reader, sizeHint int64) ([]byte, error) {
	var buf bytes.Buffer
	if sizeHint > 0 && sizeHint < 1<<30 {
		buf.Grow(int(sizeHint))
	}
	_, err := buf.ReadFrom(r)
	return buf.Bytes(), err
}
