package storage

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"augeias/pkg/apperr"
)

// SniffLimit is the number of leading bytes inspected to guess a content type.
const SniffLimit = 1 << 20

// DefaultMIME is reported when the content type cannot be recognised.
const DefaultMIME = "application/octet-stream"

// Payload returns a reader over a write payload. Only []byte and io.Reader are
// accepted; text (string) and any other type are a validation error so that
// callers pick an explicit encoding.
func Payload(data any) (io.Reader, error) {
	switch v := data.(type) {
	case []byte:
		return bytes.NewReader(v), nil
	case io.Reader:
		return v, nil
	default:
		return nil, apperr.Validation("data type is not allowed")
	}
}

// ReadPayload is Payload followed by reading it completely.
func ReadPayload(data any) ([]byte, error) {
	if b, ok := data.([]byte); ok {
		return b, nil
	}
	r, err := Payload(data)
	if err != nil {
		return nil, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return b, nil
}

// SniffMIME guesses the media type of content from its first SniffLimit
// bytes. Parameters such as charset are dropped.
func SniffMIME(content []byte) string {
	if len(content) == 0 {
		return DefaultMIME
	}
	if len(content) > SniffLimit {
		content = content[:SniffLimit]
	}
	mt := mimetype.Detect(content).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "" {
		return DefaultMIME
	}
	return mt
}

// SniffReader reads at most SniffLimit bytes from r and sniffs them.
func SniffReader(r io.Reader) (string, error) {
	head, err := io.ReadAll(io.LimitReader(r, SniffLimit))
	if err != nil {
		return "", err
	}
	return SniffMIME(head), nil
}
