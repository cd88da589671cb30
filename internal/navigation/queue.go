package navigation

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JingePHA/eval-ui/internal/models"
	"github.com/JingePHA/eval-ui/internal/storage"
)

type saveJob struct {
	ctx  context.Context
	id   models.DocumentID
	mode models.Mode
	key  string
	data []byte
	done chan models.SaveResult
}

type pendingSave struct {
	data   []byte
	refs   int
	failed bool
}

// saveQueue dispatches snapshot saves to the gateway from a single worker, in enqueue order,
// so the last snapshot enqueued for a key is the one that ends up stored.
// enqueue and close must not be called concurrently with each other; the controller
// calls both under its own lock.
type saveQueue struct {
	gateway  storage.Gateway
	logger   *zap.Logger
	observer func(models.SaveResult)

	jobs     chan *saveJob
	finished chan struct{}

	// results waiting for the observer goroutine
	notes     []models.SaveResult
	notify    chan struct{}
	delivered chan struct{}

	inFlight atomic.Int64
	last     atomic.Pointer[models.SaveResult]

	mu      sync.Mutex
	pending map[string]*pendingSave
	closed  bool
}

func newSaveQueue(gateway storage.Gateway, size int, logger *zap.Logger, observer func(models.SaveResult)) *saveQueue {
	if size < 1 {
		size = 1
	}
	q := &saveQueue{
		gateway:  gateway,
		logger:   logger,
		observer: observer,
		jobs:     make(chan *saveJob, size),
		finished: make(chan struct{}),
		pending:  make(map[string]*pendingSave),
	}
	if observer != nil {
		q.notify = make(chan struct{}, 1)
		q.delivered = make(chan struct{})
		go q.deliver()
	}
	go q.run()
	return q
}

// enqueue issues a save. The job's data is visible to lookup from this point on.
func (q *saveQueue) enqueue(job *saveJob) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	p, ok := q.pending[job.key]
	if !ok {
		p = &pendingSave{}
		q.pending[job.key] = p
	}
	p.data = job.data
	p.refs++
	p.failed = false
	q.mu.Unlock()

	q.inFlight.Add(1)
	q.jobs <- job
	return nil
}

// lookup returns snapshot data that was enqueued for key but has not been stored yet.
// Data of a failed save is kept until the key is saved again.
func (q *saveQueue) lookup(key string) ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.pending[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), p.data...), true
}

func (q *saveQueue) run() {
	defer close(q.finished)
	for job := range q.jobs {
		q.process(job)
	}
	if q.notify != nil {
		close(q.notify)
	}
}

// deliver calls the observer with queued results until the worker has stopped.
func (q *saveQueue) deliver() {
	defer close(q.delivered)
	for {
		_, open := <-q.notify
		q.mu.Lock()
		notes := q.notes
		q.notes = nil
		q.mu.Unlock()
		for _, r := range notes {
			q.observer(r)
		}
		if !open {
			return
		}
	}
}

func (q *saveQueue) process(job *saveJob) {
	err := q.gateway.Save(job.ctx, job.key, job.data)

	result := models.SaveResult{DocumentID: job.id, Mode: job.mode, Key: job.key, OK: err == nil, At: time.Now()}
	if err != nil {
		result.Error = err.Error()
	}

	q.mu.Lock()
	if p, ok := q.pending[job.key]; ok {
		p.refs--
		if p.refs == 0 {
			if err == nil {
				delete(q.pending, job.key)
			} else {
				p.failed = true
			}
		}
	}
	q.mu.Unlock()
	q.inFlight.Add(-1)
	q.last.Store(&result)

	if q.logger != nil {
		if err != nil {
			q.logger.Error("Failed to save snapshot",
				zap.String("document", string(job.id)),
				zap.String("key", job.key),
				zap.Error(err))
		} else {
			q.logger.Debug("Saved snapshot",
				zap.String("document", string(job.id)),
				zap.String("key", job.key),
				zap.Int("bytes", len(job.data)))
		}
	}
	if q.observer != nil {
		q.mu.Lock()
		q.notes = append(q.notes, result)
		q.mu.Unlock()
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	if job.done != nil {
		job.done <- result
	}
}

// unsaved returns the keys whose last save failed.
func (q *saveQueue) unsaved() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var keys []string
	for key, p := range q.pending {
		if p.failed {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (q *saveQueue) lastResult() *models.SaveResult {
	return q.last.Load()
}

// close stops accepting saves and waits until queued saves have run or ctx is done.
func (q *saveQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	select {
	case <-q.finished:
	case <-ctx.Done():
		return ctx.Err()
	}
	if q.delivered == nil {
		return nil
	}
	select {
	case <-q.delivered:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
