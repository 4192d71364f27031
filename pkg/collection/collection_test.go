package collection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"augeias/pkg/apperr"
	"augeias/pkg/storage"
	"augeias/pkg/storage/fsstore"
)

func newStore(t *testing.T) storage.ObjectStore {
	t.Helper()
	s, err := fsstore.New(t.TempDir(), fsstore.WithNoSync(true))
	require.NoError(t, err)
	return s
}

func TestDefaultURIGenerator(t *testing.T) {
	g := DefaultURIGenerator{}
	require.Equal(t, "https://storage.onroerenderfgoed.be/collections/beeldbank", g.CollectionURI("beeldbank"))
	require.Equal(t, "https://storage.onroerenderfgoed.be/collections/beeldbank/containers/c1", g.ContainerURI("beeldbank", "c1"))
	require.Equal(t, "https://storage.onroerenderfgoed.be/collections/beeldbank/containers/c1/o1", g.ObjectURI("beeldbank", "c1", "o1"))

	custom := DefaultURIGenerator{Base: "http://localhost:6543/"}
	require.Equal(t, "http://localhost:6543/collections/x/containers/y/z", custom.ObjectURI("x", "y", "z"))
}

func TestPatternURIGenerator(t *testing.T) {
	g := PatternURIGenerator{Pattern: "urn:x-vioe:"}
	require.Equal(t, "urn:x-vioe:besluiten", g.CollectionURI("besluiten"))
	require.Equal(t, "urn:x-vioe:besluiten/c", g.ContainerURI("besluiten", "c"))
	require.Equal(t, "urn:x-vioe:besluiten/c/o", g.ObjectURI("besluiten", "c", "o"))

	colon := PatternURIGenerator{Pattern: "urn:a:", Separator: ":"}
	require.Equal(t, "urn:a:b:c:d", colon.ObjectURI("b", "c", "d"))
}

func TestNewDefaultsURIs(t *testing.T) {
	c := New("beeldbank", newStore(t))
	require.IsType(t, DefaultURIGenerator{}, c.URIs)

	p := New("besluiten", newStore(t), WithURIGenerator(PatternURIGenerator{Pattern: "urn:"}))
	require.Equal(t, "urn:besluiten", p.URIs.CollectionURI("besluiten"))
}

func TestRegistry(t *testing.T) {
	b := New("besluiten", newStore(t))
	a := New("beeldbank", newStore(t))
	r, err := NewRegistry(b, a)
	require.NoError(t, err)

	require.Equal(t, []string{"beeldbank", "besluiten"}, r.Names())
	require.Equal(t, 2, r.Len())

	got, err := r.Lookup("besluiten")
	require.NoError(t, err)
	require.Same(t, b, got)

	_, err = r.Lookup("missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	all := r.All()
	require.Len(t, all, 2)
	require.Same(t, a, all[0])

	names := r.Names()
	names[0] = "mutated"
	require.Equal(t, "beeldbank", r.Names()[0])
}

func TestRegistryRejects(t *testing.T) {
	s := newStore(t)
	_, err := NewRegistry(New("dup", s), New("dup", s))
	require.Error(t, err)

	_, err = NewRegistry(New("", s))
	require.Error(t, err)

	_, err = NewRegistry(New("nostore", nil))
	require.Error(t, err)

	_, err = NewRegistry((*Collection)(nil))
	require.Error(t, err)
}

func TestEmptyRegistry(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	require.Empty(t, r.Names())
}
