package contextbuf

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/logx"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/metrics"
)

// archiver forwards promoted items to an Archive off the caller's path.
// Submissions never block: a full queue drops the item and reports it as an
// archive failure.
type archiver struct {
	archive      Archive
	queue        chan Item
	group        errgroup.Group
	writeTimeout time.Duration
	onError      func(Item, error)
	logger       *logx.Logger
	recorder     metrics.Recorder

	mu       sync.Mutex
	idle     *sync.Cond // signalled when inflight drops to zero
	inflight int
	closed   bool
}

func newArchiver(a Archive, workers, queueSize int, writeTimeout time.Duration,
	onError func(Item, error), logger *logx.Logger, recorder metrics.Recorder,
) *archiver {
	ar := &archiver{
		archive:      a,
		queue:        make(chan Item, queueSize),
		writeTimeout: writeTimeout,
		onError:      onError,
		logger:       logger,
		recorder:     recorder,
	}
	ar.idle = sync.NewCond(&ar.mu)
	for i := 0; i < workers; i++ {
		ar.group.Go(ar.work)
	}
	return ar
}

func (a *archiver) work() error {
	for item := range a.queue {
		a.write(item)
		a.done()
	}
	return nil
}

func (a *archiver) write(item Item) {
	ctx := context.Background()
	if a.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.writeTimeout)
		defer cancel()
	}

	key, err := a.archive.Store(ctx, item)
	if err != nil {
		a.fail(item, err)
		return
	}
	a.recorder.ObserveArchiveWrite(true)
	logx.Debug(ctx, "archive", "stored %s (%s/%s, %d tokens) as %s",
		item.ID, item.Category, item.Priority, item.TokenCount, key)
}

func (a *archiver) fail(item Item, err error) {
	wrapped := fmt.Errorf("%w: item %s: %w", ErrArchiveWrite, item.ID, err)
	a.recorder.ObserveArchiveWrite(false)
	a.logger.Warn("%v", wrapped)
	if a.onError != nil {
		a.onError(item, wrapped)
	}
}

func (a *archiver) done() {
	a.mu.Lock()
	a.inflight--
	if a.inflight == 0 {
		a.idle.Broadcast()
	}
	a.mu.Unlock()
}

// submit enqueues item without blocking. It reports whether the item was queued.
// The error handler runs after the lock is released so it may call back into the buffer.
func (a *archiver) submit(item Item) bool {
	a.mu.Lock()
	var err error
	switch {
	case a.closed:
		err = ErrClosed
	default:
		select {
		case a.queue <- item:
			a.inflight++
		default:
			err = fmt.Errorf("queue full (%d)", cap(a.queue))
		}
	}
	a.mu.Unlock()

	if err != nil {
		a.fail(item, err)
		return false
	}
	return true
}

// flush waits until every queued item has been written or ctx ends.
func (a *archiver) flush(ctx context.Context) error {
	return waitCtx(ctx, func() {
		a.mu.Lock()
		for a.inflight > 0 {
			a.idle.Wait()
		}
		a.mu.Unlock()
	})
}

// close stops intake and waits for the workers to drain the queue.
func (a *archiver) close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	return waitCtx(ctx, func() { _ = a.group.Wait() })
}

func waitCtx(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for archive writes: %w", ctx.Err())
	}
}
