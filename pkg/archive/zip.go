package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"

	"augeias/pkg/apperr"
)

// zipEpoch is the modification time stamped on entries written by BuildZip so
// that equal input always produces equal bytes.
var zipEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

func newZipWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	return zw
}

func openZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	zr.RegisterDecompressor(zip.Deflate, flate.NewReader)
	return zr, nil
}

// BuildZip writes members, in order, into a new zip archive.
func BuildZip(members []Member) ([]byte, error) {
	var buf bytes.Buffer
	zw := newZipWriter(&buf)
	for _, m := range members {
		if err := writeZipEntry(zw, m.Name, m.Data, zipEpoch); err != nil {
			_ = zw.Close()
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte, mod time.Time) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: mod,
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create zip entry %q: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write zip entry %q: %w", name, err)
	}
	return nil
}

// ReplaceMember returns a copy of the zip in zipData in which every entry
// named target is dropped and an entry newName holding content is appended.
// Other entries are copied without recompression. It is a validation error if
// target is not in the archive. newName is not checked against the surviving
// entries, so the result may hold two entries with the same name.
func ReplaceMember(zipData []byte, target string, content []byte, newName string) ([]byte, error) {
	zr, err := openZip(zipData)
	if err != nil {
		return nil, formatErr("open zip", err)
	}
	found := false
	for _, f := range zr.File {
		if f.Name == target {
			found = true
			break
		}
	}
	if !found {
		return nil, apperr.Validation("File to replace not found in archive")
	}

	var buf bytes.Buffer
	zw := newZipWriter(&buf)
	for _, f := range zr.File {
		if f.Name == target {
			continue
		}
		if err := zw.Copy(f); err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("copy zip entry %q: %w", f.Name, err)
		}
	}
	if err := writeZipEntry(zw, newName, content, time.Now()); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip writer: %w", err)
	}
	return buf.Bytes(), nil
}

type zipMembers struct {
	files []*zip.File
	next  int
}

func (z *zipMembers) Next() (Member, error) {
	for z.next < len(z.files) {
		f := z.files[z.next]
		z.next++
		if strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Member{}, formatErr("open zip entry "+f.Name, err)
		}
		data, err := readAllLimited(rc, int64(f.UncompressedSize64))
		_ = rc.Close()
		if err != nil {
			return Member{}, formatErr("read zip entry "+f.Name, err)
		}
		return Member{Name: f.Name, Data: data}, nil
	}
	return Member{}, io.EOF
}

// IsZip reports whether data parses as a zip archive.
func IsZip(data []byte) bool {
	_, err := openZip(data)
	return err == nil
}
