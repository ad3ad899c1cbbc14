package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// persistJob is one queued Save request; done is closed once the save
// (successful or not) has been attempted, so callers that want to wait
// for their own write to land can do so without blocking the queue for
// everyone else.
type persistJob struct {
	snap *Snapshot
	done chan struct{}
}

// Controller wraps an Adapter with the persist-queue and
// rehydrate-cooldown/coalescing semantics of §4.1. Persist is
// serialized through a single consumer goroutine (a FIFO lane across
// all sessions, matching the teacher's single-writer-per-resource
// idiom generalized process-wide); Rehydrate coalesces concurrent
// callers via singleflight so a stampede of "my write looks stale"
// triggers collapses into one Load.
type Controller struct {
	adapter Adapter
	logger  *zap.SugaredLogger

	rehydrateCooldown time.Duration

	mu            sync.RWMutex
	current       *Snapshot
	lastRehydrate time.Time

	queue chan persistJob
	sf    singleflight.Group

	beforePersist  func(*Snapshot)
	afterRehydrate func(*Snapshot)

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewController(adapter Adapter, logger *zap.Logger, rehydrateCooldown time.Duration) *Controller {
	c := &Controller{
		adapter:           adapter,
		logger:            logger.Sugar().With("component", "store_controller", "adapter", adapter.Name()),
		rehydrateCooldown: rehydrateCooldown,
		current:           NewSnapshot(),
		queue:             make(chan persistJob, 256),
		stop:              make(chan struct{}),
	}
	return c
}

// OnBeforePersist registers a hook invoked (synchronously, before
// handing off to the adapter) with the snapshot about to be saved.
func (c *Controller) OnBeforePersist(fn func(*Snapshot)) { c.beforePersist = fn }

// OnAfterRehydrate registers a hook invoked after a rehydrate replaces
// the in-memory snapshot, so engines can re-derive caches/timers.
func (c *Controller) OnAfterRehydrate(fn func(*Snapshot)) { c.afterRehydrate = fn }

// Start boots the single persist-consumer goroutine and performs the
// initial Load.
func (c *Controller) Start(ctx context.Context) error {
	snap, err := c.adapter.Load(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.current = snap
	c.mu.Unlock()

	c.wg.Add(1)
	go c.consumeLoop()
	return nil
}

func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

func (c *Controller) consumeLoop() {
	defer c.wg.Done()
	for {
		select {
		case job := <-c.queue:
			c.runSave(job)
		case <-c.stop:
			// Drain whatever is already queued before exiting so a
			// shutdown doesn't silently drop a pending write.
			for {
				select {
				case job := <-c.queue:
					c.runSave(job)
				default:
					return
				}
			}
		}
	}
}

func (c *Controller) runSave(job persistJob) {
	if c.beforePersist != nil {
		c.beforePersist(job.snap)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := c.adapter.Save(ctx, job.snap); err != nil {
		c.logger.Warnw("persist failed, will retry on next enqueue", "error", err)
	}
	cancel()
	close(job.done)
}

// QueueDepth reports how many persist jobs are currently queued,
// sampled by the admin surface's metrics gauge.
func (c *Controller) QueueDepth() int { return len(c.queue) }

// Snapshot returns the current in-memory snapshot's clone, safe for
// the caller to mutate independently.
func (c *Controller) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Clone()
}

// Mutate runs fn against a cloned snapshot, swaps it in as the new
// current snapshot, and enqueues a persist of that clone. It returns
// once the mutation is applied in memory; the persist happens async
// on the controller's FIFO lane.
func (c *Controller) Mutate(fn func(*Snapshot)) {
	c.mu.Lock()
	next := c.current.Clone()
	fn(next)
	c.current = next
	c.mu.Unlock()

	c.enqueuePersist(next)
}

func (c *Controller) enqueuePersist(snap *Snapshot) {
	job := persistJob{snap: snap, done: make(chan struct{})}
	select {
	case c.queue <- job:
	case <-c.stop:
	}
}

// Persist forces an immediate enqueue+wait of the current snapshot,
// used before a Rehydrate so in-flight writes aren't lost underneath it.
func (c *Controller) Persist(ctx context.Context) error {
	c.mu.RLock()
	snap := c.current.Clone()
	c.mu.RUnlock()

	job := persistJob{snap: snap, done: make(chan struct{})}
	select {
	case c.queue <- job:
	case <-c.stop:
		return nil
	}
	select {
	case <-job.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rehydrate reloads the snapshot from the adapter, per §4.1: concurrent
// callers coalesce onto one in-flight Load via singleflight; unless
// forced, a call inside the cooldown window since the last rehydrate is
// a no-op that returns false.
func (c *Controller) Rehydrate(ctx context.Context, reason string, force bool) bool {
	if err := c.Persist(ctx); err != nil {
		c.logger.Warnw("rehydrate: persist before load failed", "reason", reason, "error", err)
		return false
	}
	c.mu.RLock()
	since := time.Since(c.lastRehydrate)
	c.mu.RUnlock()
	if !force && since < c.rehydrateCooldown {
		c.logger.Debugw("rehydrate skipped, inside cooldown", "reason", reason, "sinceLast", since)
		return false
	}

	_, err, _ := c.sf.Do("rehydrate", func() (any, error) {
		snap, loadErr := c.adapter.Load(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		cloned := snap.Clone()
		c.mu.Lock()
		c.current = cloned
		c.lastRehydrate = time.Now()
		c.mu.Unlock()
		if c.afterRehydrate != nil {
			c.afterRehydrate(cloned)
		}
		return nil, nil
	})
	if err != nil {
		c.logger.Warnw("rehydrate failed", "reason", reason, "error", err)
		return false
	}
	c.logger.Infow("rehydrate completed", "reason", reason, "forced", force)
	return true
}
