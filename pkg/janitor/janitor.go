// Package janitor periodically removes write leftovers from the collections
// whose backend supports it (storage.Sweeper).
package janitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"augeias/pkg/collection"
	"augeias/pkg/storage"
)

// Stats captures janitor activity since Start (or since New when only
// RunOnce is used).
type Stats struct {
	Runs             uint64        `json:"runs"`
	Swept            uint64        `json:"sweptCollections"`
	TempFilesRemoved uint64        `json:"tempFilesRemoved"`
	DirsRemoved      uint64        `json:"dirsRemoved"`
	Errors           uint64        `json:"errors"`
	LastRun          time.Time     `json:"lastRun"`
	LastError        string        `json:"lastError,omitempty"`
	Uptime           time.Duration `json:"uptime"`
}

// Config configures the janitor.
type Config struct {
	Interval    time.Duration
	OlderThan   time.Duration
	Concurrency int
}

type target struct {
	name string
	sw   storage.Sweeper
}

// Janitor runs Sweep on every sweepable collection, in parallel up to
// Config.Concurrency. It is safe for concurrent use.
type Janitor struct {
	cfg     Config
	log     *zap.Logger
	targets []target
	pool    *ants.Pool

	runMu    sync.Mutex
	running  atomic.Bool
	start    atomic.Pointer[time.Time]
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}

	runs      atomic.Uint64
	swept     atomic.Uint64
	temps     atomic.Uint64
	dirs      atomic.Uint64
	errs      atomic.Uint64
	lastRun   atomic.Pointer[time.Time]
	lastError atomic.Pointer[string]
}

// New collects the sweepable collections of reg. Collections whose store is
// not a storage.Sweeper are skipped.
func New(reg *collection.Registry, cfg Config, log *zap.Logger) (*Janitor, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.OlderThan <= 0 {
		cfg.OlderThan = time.Hour
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	j := &Janitor{
		cfg:    cfg,
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, c := range reg.All() {
		if sw, ok := c.Store.(storage.Sweeper); ok {
			j.targets = append(j.targets, target{name: c.Name, sw: sw})
		}
	}

	pool, err := ants.NewPool(cfg.Concurrency, ants.WithPanicHandler(func(p any) {
		log.Error("janitor: sweep panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, fmt.Errorf("janitor: create pool: %w", err)
	}
	j.pool = pool
	return j, nil
}

// Collections returns the names of the collections the janitor sweeps.
func (j *Janitor) Collections() []string {
	names := make([]string, len(j.targets))
	for i, t := range j.targets {
		names[i] = t.name
	}
	return names
}

// Start launches the periodic loop until Stop is called or ctx is done.
func (j *Janitor) Start(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		return errors.New("janitor: already running")
	}
	now := time.Now()
	j.start.Store(&now)
	go j.loop(ctx)
	return nil
}

func (j *Janitor) loop(ctx context.Context) {
	defer func() {
		j.running.Store(false)
		close(j.doneCh)
	}()
	t := time.NewTicker(j.cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-t.C:
			if err := j.RunOnce(ctx); err != nil {
				j.log.Warn("janitor: pass finished with errors", zap.Error(err))
			}
		}
	}
}

// Stop ends the loop started by Start, waits for it and releases the pool.
func (j *Janitor) Stop(ctx context.Context) error {
	defer j.pool.Release()
	if !j.running.Load() {
		return nil
	}
	j.stopOnce.Do(func() { close(j.stopCh) })
	select {
	case <-j.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce sweeps every target once and waits for completion. Passes do not
// overlap; a concurrent call waits for the running one.
func (j *Janitor) RunOnce(ctx context.Context) error {
	j.runMu.Lock()
	defer j.runMu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		j.errs.Add(1)
		msg := err.Error()
		j.lastError.Store(&msg)
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, t := range j.targets {
		if ctx.Err() != nil {
			fail(ctx.Err())
			break
		}
		wg.Add(1)
		err := j.pool.Submit(func() {
			defer wg.Done()
			res, err := t.sw.Sweep(ctx, j.cfg.OlderThan)
			j.temps.Add(uint64(res.TempFilesRemoved))
			j.dirs.Add(uint64(res.DirsRemoved))
			if err != nil {
				fail(fmt.Errorf("sweep %s: %w", t.name, err))
				return
			}
			j.swept.Add(1)
			if res.TempFilesRemoved > 0 || res.DirsRemoved > 0 {
				j.log.Info("janitor: collection swept",
					zap.String("collection", t.name),
					zap.Int("temps", res.TempFilesRemoved),
					zap.Int("dirs", res.DirsRemoved))
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("sweep %s: %w", t.name, err))
		}
	}
	wg.Wait()

	j.runs.Add(1)
	now := time.Now()
	j.lastRun.Store(&now)
	return errors.Join(errs...)
}

// Stats returns a snapshot of the counters.
func (j *Janitor) Stats() Stats {
	st := Stats{
		Runs:             j.runs.Load(),
		Swept:            j.swept.Load(),
		TempFilesRemoved: j.temps.Load(),
		DirsRemoved:      j.dirs.Load(),
		Errors:           j.errs.Load(),
	}
	if p := j.lastRun.Load(); p != nil {
		st.LastRun = *p
	}
	if p := j.lastError.Load(); p != nil {
		st.LastError = *p
	}
	if p := j.start.Load(); p != nil {
		st.Uptime = time.Since(*p)
	}
	return st
}
