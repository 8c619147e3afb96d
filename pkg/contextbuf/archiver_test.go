package contextbuf

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/logx"
	"github.com/thundeeran/CodeFlow-Product-Roadmap/pkg/metrics"
)

// blockingArchive holds every Store call until release is closed.
type blockingArchive struct {
	recordingArchive
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingArchive() *blockingArchive {
	return &blockingArchive{started: make(chan struct{}), release: make(chan struct{})}
}

func (a *blockingArchive) Store(ctx context.Context, item Item) (string, error) {
	a.once.Do(func() { close(a.started) })
	select {
	case <-a.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return a.recordingArchive.Store(ctx, item)
}

type errorLog struct {
	mu   sync.Mutex
	errs []error
}

func (l *errorLog) record(_ Item, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *errorLog) all() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

func testArchiver(a Archive, workers, queue int, onError func(Item, error), rec metrics.Recorder) *archiver {
	return newArchiver(a, workers, queue, time.Second, onError, logx.NewLogger("archiver-test"), rec)
}

func TestArchiverWritesAndCloses(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &recordingArchive{}
	rec := metrics.NewInternalRecorder()
	ar := testArchiver(store, 2, 8, nil, rec)

	for i := 0; i < 5; i++ {
		assert.True(t, ar.submit(Item{ID: ItemID(string(rune('a' + i))), Priority: PriorityMedium}))
	}
	require.NoError(t, ar.flush(context.Background()))
	assert.Len(t, store.stored(), 5)

	require.NoError(t, ar.close(context.Background()))
	require.NoError(t, ar.close(context.Background()), "close is idempotent")
	assert.Equal(t, int64(5), rec.Snapshot().ArchiveOK)
}

func TestArchiverReportsStoreErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	storeErr := errors.New("disk full")
	store := &recordingArchive{err: storeErr}
	rec := metrics.NewInternalRecorder()
	var log errorLog
	ar := testArchiver(store, 1, 4, log.record, rec)

	ar.submit(Item{ID: "x", Priority: PriorityHigh})
	require.NoError(t, ar.close(context.Background()))

	errs := log.all()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrArchiveWrite)
	assert.ErrorIs(t, errs[0], storeErr)
	assert.Equal(t, int64(1), rec.Snapshot().ArchiveFailed)
}

func TestArchiverQueueFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newBlockingArchive()
	var log errorLog
	ar := testArchiver(store, 1, 1, log.record, metrics.Nop())

	require.True(t, ar.submit(Item{ID: "first"}))
	<-store.started // the worker holds "first", the queue is empty again
	require.True(t, ar.submit(Item{ID: "second"}))
	assert.False(t, ar.submit(Item{ID: "third"}))

	errs := log.all()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrArchiveWrite)
	assert.Contains(t, errs[0].Error(), "queue full")

	close(store.release)
	require.NoError(t, ar.close(context.Background()))
	assert.Equal(t, []ItemID{"first", "second"}, ids(store.stored()))
}

func TestArchiverFlushHonorsContext(t *testing.T) {
	store := newBlockingArchive()
	ar := testArchiver(store, 1, 1, nil, metrics.Nop())

	ar.submit(Item{ID: "slow"})
	<-store.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := ar.flush(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(store.release)
	require.NoError(t, ar.close(context.Background()))
}

func TestArchiverRejectsAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	var log errorLog
	ar := testArchiver(&recordingArchive{}, 1, 1, log.record, metrics.Nop())
	require.NoError(t, ar.close(context.Background()))

	assert.False(t, ar.submit(Item{ID: "late"}))
	errs := log.all()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrClosed)
	assert.ErrorIs(t, errs[0], ErrArchiveWrite)
}

func TestArchiverErrorHandlerMayFlush(t *testing.T) {
	defer goleak.VerifyNone(t)

	var flushErr error
	var ar *archiver
	ar = testArchiver(&recordingArchive{}, 1, 1, func(Item, error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		flushErr = ar.flush(ctx)
	}, metrics.Nop())
	require.NoError(t, ar.close(context.Background()))

	assert.False(t, ar.submit(Item{ID: "late"}))
	assert.NoError(t, flushErr, "the handler runs without the archiver lock held")
}

func TestBufferCloseDrainsArchive(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &recordingArchive{}
	b, err := New(Config{MaxTokens: 100, BufferRatio: 0.2}, lenTokenizer,
		WithArchive(store), WithArchiveWorkers(1, 4))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		mustAdd(t, b, 80, CategoryMemory, PriorityMedium)
	}
	require.NoError(t, b.Close(context.Background()))
	assert.Len(t, store.stored(), 3, "every evicted medium item reached the archive")
}

func TestBufferArchiveErrorHandler(t *testing.T) {
	store := &recordingArchive{err: errors.New("unreachable")}
	var log errorLog
	b := newTestBuffer(t, 100, 0.2, WithArchive(store), WithArchiveErrorHandler(log.record))

	mustAdd(t, b, 80, CategoryCode, PriorityHigh)
	mustAdd(t, b, 80, CategorySystem, PriorityCritical)
	require.NoError(t, b.FlushArchive(context.Background()))

	// The add itself succeeded; only the archive write failed.
	assert.Equal(t, 80, b.Stats().CurrentTokens)
	errs := log.all()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrArchiveWrite)
}
