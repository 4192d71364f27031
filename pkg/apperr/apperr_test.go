package apperr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, KindNotFound, KindOf(NotFound("container missing")))
	require.Equal(t, KindValidation, KindOf(Validationf("key %q too short", "ab")))
	require.Equal(t, KindFormat, KindOf(Format("neither zip nor tar")))
	require.Equal(t, KindInternal, KindOf(io.ErrUnexpectedEOF))

	wrapped := fmt.Errorf("get object: %w", NotFound("object missing"))
	require.Equal(t, KindNotFound, KindOf(wrapped))
	require.ErrorIs(t, wrapped, ErrNotFound)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("zip: not a valid zip file")
	err := Wrap(ErrFormat, cause)
	require.ErrorIs(t, err, ErrFormat)
	require.ErrorIs(t, err, cause)
}

func TestMessage(t *testing.T) {
	require.Equal(t, "member not found", Message(NotFound("member not found")))
	require.Equal(t, "member not found", Message(fmt.Errorf("extract: %w", NotFound("member not found"))))
	require.Equal(t, "boom", Message(errors.New("boom")))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "not_found", KindNotFound.String())
	require.Equal(t, "validation", KindValidation.String())
	require.Equal(t, "format", KindFormat.String())
	require.Equal(t, "internal", KindInternal.String())
}
