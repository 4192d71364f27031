package main

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"augeias/pkg/collection"
	"augeias/pkg/config"
	"augeias/pkg/storage"
	"augeias/pkg/storage/boltstore"
	"augeias/pkg/storage/fsstore"
	"augeias/pkg/storage/memstore"
	"augeias/pkg/storage/s3store"
)

// observerFor gives every collection its own labelled storage observer.
type observerFor func(collection string) storage.Observer

// openCollections builds one store per configured collection. The returned
// closer releases backends holding files open (bolt).
func openCollections(cfg config.Config, log *zap.Logger, obs observerFor) (*collection.Registry, io.Closer, error) {
	if obs == nil {
		obs = func(string) storage.Observer { return storage.NopObserver }
	}
	var (
		cols    []*collection.Collection
		closers closerList
	)
	for _, cc := range cfg.Collections {
		l := log.With(zap.String("collection", cc.Name), zap.String("backend", cc.Backend))
		s, err := openStore(cc, l, obs(cc.Name))
		if err != nil {
			_ = closers.Close()
			return nil, nil, fmt.Errorf("collection %q: %w", cc.Name, err)
		}
		if c, ok := s.(io.Closer); ok {
			closers = append(closers, c)
		}
		cols = append(cols, collection.New(cc.Name, s, collection.WithURIGenerator(uriGenerator(cc))))
		l.Info("collection ready")
	}
	reg, err := collection.NewRegistry(cols...)
	if err != nil {
		_ = closers.Close()
		return nil, nil, err
	}
	return reg, closers, nil
}

func openStore(cc config.CollectionConfig, log *zap.Logger, obs storage.Observer) (storage.ObjectStore, error) {
	switch cc.Backend {
	case config.BackendPairtree, "":
		opts := []fsstore.Option{
			fsstore.WithNoSync(cc.NoSync),
			fsstore.WithLogger(log),
			fsstore.WithObserver(obs),
		}
		if cc.PairtreePrefix != "" {
			opts = append(opts, fsstore.WithPrefix(cc.PairtreePrefix))
		}
		return fsstore.New(cc.DataDir, opts...)
	case config.BackendBolt:
		return boltstore.Open(cc.DataDir,
			boltstore.WithNoSync(cc.NoSync),
			boltstore.WithLogger(log),
			boltstore.WithObserver(obs),
		)
	case config.BackendS3:
		return s3store.Open(s3store.Config{
			Bucket:         cc.S3.Bucket,
			Prefix:         cc.S3.Prefix,
			Region:         cc.S3.Region,
			Endpoint:       cc.S3.Endpoint,
			ForcePathStyle: cc.S3.ForcePathStyle,
		}, s3store.WithLogger(log), s3store.WithObserver(obs))
	case config.BackendMemory:
		log.Warn("memory backend is not durable")
		return memstore.New(memstore.WithObserver(obs)), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cc.Backend)
	}
}

func uriGenerator(cc config.CollectionConfig) collection.URIGenerator {
	if cc.URIPattern != "" {
		return collection.PatternURIGenerator{Pattern: cc.URIPattern, Separator: cc.URISeparator}
	}
	return collection.DefaultURIGenerator{Base: cc.URIBase}
}

type closerList []io.Closer

func (l closerList) Close() error {
	var errs []error
	for _, c := range l {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
