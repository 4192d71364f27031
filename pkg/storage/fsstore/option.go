package fsstore

import (
	"io/fs"

	"go.uber.org/zap"

	"augeias/pkg/storage"
)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the identifier prefix recorded in a new tree.
func WithPrefix(p string) Option {
	return func(s *Store) {
		s.prefix = p
	}
}

func WithPerm(p fs.FileMode) Option {
	return func(s *Store) {
		s.perm = p
	}
}

// WithNoSync disables fsync of written objects and their directories.
func WithNoSync(noSync bool) Option {
	return func(s *Store) {
		s.noSync = noSync
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func WithObserver(o storage.Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.obs = o
		}
	}
}
