// Package fsstore implements storage.ObjectStore on a local pair-tree.
//
// The directory layout is
//
//	<dataDir>/pairtree_version0_1
//	<dataDir>/pairtree_prefix
//	<dataDir>/pairtree_root/<container shorties>/obj/<object shorties>/data
//
// "obj" and "data" are longer than a shorty, so they never collide with the
// path of another key.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"augeias/pkg/apperr"
	"augeias/pkg/storage"
	"augeias/pkg/storage/pairtree"
)

const (
	versionFile = "pairtree_version0_1"
	prefixFile  = "pairtree_prefix"
	rootDir     = "pairtree_root"

	containerDirName = "obj"
	objectFileName   = "data"

	// DefaultPrefix is written to pairtree_prefix when a tree is created.
	DefaultPrefix = "urn:x-vioe:"

	versionText = "This directory conforms to Pairtree Version 0.1. Updated spec: " +
		"http://www.cdlib.org/inside/diglib/pairtree/pairtreespec.html\n"

	writeRetries = 8
)

// Store is a pair-tree backed object store rooted at one directory.
type Store struct {
	base   string
	root   string
	prefix string
	perm   fs.FileMode
	noSync bool

	log *zap.Logger
	obs storage.Observer
}

// New opens the tree in dataDir, creating it when missing. The prefix of an
// existing tree is read back from disk and takes precedence over WithPrefix.
func New(dataDir string, opts ...Option) (*Store, error) {
	if dataDir == "" {
		return nil, errors.New("no data directory configured")
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, err
	}
	s := &Store{
		base:   abs,
		root:   filepath.Join(abs, rootDir),
		prefix: DefaultPrefix,
		perm:   0o700,
		log:    zap.NewNop(),
		obs:    storage.NopObserver,
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	s.log.Info("pair-tree store opened",
		zap.String("path", s.base),
		zap.String("prefix", s.prefix),
		zap.Bool("no_sync", s.noSync))
	return s, nil
}

func (s *Store) init() error {
	if err := os.MkdirAll(s.root, s.perm|0o100); err != nil {
		return fmt.Errorf("create pair-tree root: %w", err)
	}
	vp := filepath.Join(s.base, versionFile)
	if _, err := os.Stat(vp); errors.Is(err, fs.ErrNotExist) {
		if err := os.WriteFile(vp, []byte(versionText), 0o600); err != nil {
			return fmt.Errorf("write %s: %w", versionFile, err)
		}
	}
	pp := filepath.Join(s.base, prefixFile)
	b, err := os.ReadFile(pp)
	switch {
	case err == nil:
		s.prefix = strings.TrimSpace(string(b))
	case errors.Is(err, fs.ErrNotExist):
		if err := os.WriteFile(pp, []byte(s.prefix), 0o600); err != nil {
			return fmt.Errorf("write %s: %w", prefixFile, err)
		}
	default:
		return fmt.Errorf("read %s: %w", prefixFile, err)
	}
	return nil
}

// Backend implements the backend name lookup of storage.BackendName.
func (s *Store) Backend() string { return "pairtree" }

// Prefix returns the identifier prefix recorded in the tree.
func (s *Store) Prefix() string { return s.prefix }

// Path returns the data directory.
func (s *Store) Path() string { return s.base }

func (s *Store) containerDir(container string) string {
	segs := pairtree.PathFor(container)
	parts := make([]string, 0, len(segs)+2)
	parts = append(parts, s.root)
	parts = append(parts, segs...)
	parts = append(parts, containerDirName)
	return filepath.Join(parts...)
}

func objectPath(cdir, key string) string {
	segs := pairtree.PathFor(key)
	parts := make([]string, 0, len(segs)+2)
	parts = append(parts, cdir)
	parts = append(parts, segs...)
	parts = append(parts, objectFileName)
	return filepath.Join(parts...)
}

func (s *Store) observe(op string, start time.Time, n int64, err error) {
	s.obs.Observe(op, n, err, time.Since(start))
}

// requireContainer returns the container directory or a NotFound error.
func (s *Store) requireContainer(container string) (string, error) {
	if err := storage.CheckKey("container", container); err != nil {
		return "", err
	}
	dir := s.containerDir(container)
	st, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperr.NotFoundf("container %q not found", container)
		}
		return "", fmt.Errorf("stat container: %w", err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("container path %q is not a directory", dir)
	}
	return dir, nil
}

func (s *Store) CreateContainer(_ context.Context, container string) (err error) {
	defer func(start time.Time) { s.observe(storage.OpCreateContainer, start, 0, err) }(time.Now())
	if err = storage.CheckKey("container", container); err != nil {
		return err
	}
	dir := s.containerDir(container)
	if err = os.MkdirAll(dir, s.perm|0o100); err != nil {
		return fmt.Errorf("create container directory: %w", err)
	}
	s.log.Debug("container created", zap.String("container", container), zap.String("path", dir))
	return nil
}

func (s *Store) DeleteContainer(_ context.Context, container string) (err error) {
	defer func(start time.Time) { s.observe(storage.OpDeleteContainer, start, 0, err) }(time.Now())
	dir, err := s.requireContainer(container)
	if err != nil {
		return err
	}
	if err = os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove container directory: %w", err)
	}
	storage.PruneEmptyDirs(filepath.Dir(dir), s.root)
	s.log.Debug("container deleted", zap.String("container", container))
	return nil
}

func (s *Store) ContainerExists(_ context.Context, container string) (bool, error) {
	_, err := s.requireContainer(container)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperr.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *Store) CreateObject(ctx context.Context, container, key string, data any) error {
	return s.put(ctx, container, key, data)
}

func (s *Store) UpdateObject(ctx context.Context, container, key string, data any) error {
	return s.put(ctx, container, key, data)
}

func (s *Store) put(_ context.Context, container, key string, data any) (err error) {
	var n int64
	defer func(start time.Time) { s.observe(storage.OpPut, start, n, err) }(time.Now())

	cdir, err := s.requireContainer(container)
	if err != nil {
		return err
	}
	if err = storage.CheckKey("object", key); err != nil {
		return err
	}
	r, err := storage.Payload(data)
	if err != nil {
		return err
	}
	p := objectPath(cdir, key)
	if err = os.MkdirAll(filepath.Dir(p), s.perm|0o100); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	n, err = s.writeFile(p, r)
	return err
}

// writeFile writes r into a temporary sibling of p and renames it over p.
// Temporaries are named p#<n>; a name already taken by a concurrent writer
// moves on to the next n.
func (s *Store) writeFile(p string, r io.Reader) (int64, error) {
	for i := range writeRetries {
		tmp := p + "#" + strconv.Itoa(i)
		n, err := s.writeAndRename(tmp, p, r)
		if !errors.Is(err, syscall.EEXIST) {
			return n, err
		}
	}
	return 0, fmt.Errorf("couldn't write file after %d retries", writeRetries)
}

func (s *Store) writeAndRename(tmp, p string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.perm&0o666)
	if err != nil {
		var pe *fs.PathError
		if errors.As(err, &pe) && errors.Is(pe.Err, syscall.EEXIST) {
			return 0, syscall.EEXIST
		}
		return 0, fmt.Errorf("open temporary file: %w", err)
	}
	n, err := io.Copy(f, r)
	if err == nil && !s.noSync {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return n, fmt.Errorf("write data into file %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return n, fmt.Errorf("rename file %q->%q: %w", tmp, p, err)
	}
	if !s.noSync {
		if err := storage.SyncDir(filepath.Dir(p)); err != nil {
			s.log.Warn("directory sync failed", zap.String("path", filepath.Dir(p)), zap.Error(err))
		}
	}
	return n, nil
}

func (s *Store) objectFile(container, key string) (string, error) {
	cdir, err := s.requireContainer(container)
	if err != nil {
		return "", err
	}
	if err := storage.CheckKey("object", key); err != nil {
		return "", err
	}
	return objectPath(cdir, key), nil
}

func notFoundOr(err error, container, key, op string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return apperr.NotFoundf("object %q not found in container %q", key, container)
	}
	return fmt.Errorf("%s object: %w", op, err)
}

func (s *Store) GetObject(_ context.Context, container, key string) (data []byte, err error) {
	defer func(start time.Time) { s.observe(storage.OpGet, start, int64(len(data)), err) }(time.Now())
	p, err := s.objectFile(container, key)
	if err != nil {
		return nil, err
	}
	data, err = os.ReadFile(p)
	if err != nil {
		return nil, notFoundOr(err, container, key, "read")
	}
	return data, nil
}

func (s *Store) GetObjectInfo(_ context.Context, container, key string) (info storage.ObjectInfo, err error) {
	defer func(start time.Time) { s.observe(storage.OpHead, start, 0, err) }(time.Now())
	p, err := s.objectFile(container, key)
	if err != nil {
		return info, err
	}
	f, err := os.Open(p)
	if err != nil {
		return info, notFoundOr(err, container, key, "open")
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return info, fmt.Errorf("stat object: %w", err)
	}
	mt, err := storage.SniffReader(f)
	if err != nil {
		return info, fmt.Errorf("sniff object: %w", err)
	}
	return storage.ObjectInfo{
		Size:         st.Size(),
		LastModified: st.ModTime().UTC(),
		MIME:         mt,
	}, nil
}

func (s *Store) DeleteObject(_ context.Context, container, key string) (err error) {
	defer func(start time.Time) { s.observe(storage.OpDelete, start, 0, err) }(time.Now())
	cdir, err := s.requireContainer(container)
	if err != nil {
		return err
	}
	if err = storage.CheckKey("object", key); err != nil {
		return err
	}
	p := objectPath(cdir, key)
	if err = os.Remove(p); err != nil {
		return notFoundOr(err, container, key, "remove")
	}
	storage.PruneEmptyDirs(filepath.Dir(p), cdir)
	return nil
}

func (s *Store) ListObjectKeys(_ context.Context, container string) (keys []string, err error) {
	defer func(start time.Time) { s.observe(storage.OpList, start, 0, err) }(time.Now())
	cdir, err := s.requireContainer(container)
	if err != nil {
		return nil, err
	}
	keys = []string{}
	err = filepath.WalkDir(cdir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if p != cdir && !pairtree.IsShorty(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != objectFileName {
			return nil
		}
		rel, err := filepath.Rel(cdir, filepath.Dir(p))
		if err != nil || rel == "." {
			return nil
		}
		key, err := pairtree.Join(strings.Split(filepath.ToSlash(rel), "/"))
		if err != nil {
			s.log.Warn("skipping undecodable object path", zap.String("path", p), zap.Error(err))
			return nil
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk container: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) GetContainerArchive(ctx context.Context, container string, names map[string]string) (data []byte, err error) {
	defer func(start time.Time) { s.observe(storage.OpArchive, start, int64(len(data)), err) }(time.Now())
	return storage.BuildContainerArchive(ctx, s, container, names)
}

var _ storage.ObjectStore = (*Store)(nil)
