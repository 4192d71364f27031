// Package collection groups object stores under names and keeps the
// process-wide, read-only set of them.
package collection

import (
	"errors"
	"fmt"
	"sort"

	"augeias/pkg/apperr"
	"augeias/pkg/storage"
)

// Collection is a named object store.
type Collection struct {
	Name  string
	Store storage.ObjectStore
	URIs  URIGenerator
}

type Option func(*Collection)

// WithURIGenerator replaces the DefaultURIGenerator.
func WithURIGenerator(g URIGenerator) Option {
	return func(c *Collection) {
		if g != nil {
			c.URIs = g
		}
	}
}

// New returns a collection using DefaultURIGenerator unless overridden.
func New(name string, store storage.ObjectStore, opts ...Option) *Collection {
	c := &Collection{
		Name:  name,
		Store: store,
		URIs:  DefaultURIGenerator{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Registry is an immutable name -> collection mapping built once at startup.
// It is safe for concurrent use because it is never modified.
type Registry struct {
	byName map[string]*Collection
	names  []string
}

// NewRegistry validates and indexes cols.
func NewRegistry(cols ...*Collection) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Collection, len(cols))}
	for _, c := range cols {
		if c == nil {
			return nil, errors.New("nil collection")
		}
		if c.Name == "" {
			return nil, errors.New("collection name must not be empty")
		}
		if c.Store == nil {
			return nil, fmt.Errorf("collection %q has no store", c.Name)
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, fmt.Errorf("duplicate collection %q", c.Name)
		}
		r.byName[c.Name] = c
		r.names = append(r.names, c.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Lookup returns the named collection or an apperr.ErrNotFound error.
func (r *Registry) Lookup(name string) (*Collection, error) {
	c, ok := r.byName[name]
	if !ok {
		return nil, apperr.NotFoundf("collection %q not found", name)
	}
	return c, nil
}

// Names returns the collection names sorted for stable output.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// All returns the collections ordered by name.
func (r *Registry) All() []*Collection {
	out := make([]*Collection, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.byName[n])
	}
	return out
}

func (r *Registry) Len() int { return len(r.names) }
