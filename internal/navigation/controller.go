// Package navigation coordinates moving between documents: the annotations of the
// document being left are flushed to storage before the registry advances, then the next
// document's content is loaded.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JingePHA/eval-ui/internal/annotation"
	"github.com/JingePHA/eval-ui/internal/models"
	"github.com/JingePHA/eval-ui/internal/registry"
	"github.com/JingePHA/eval-ui/internal/storage"
)

var (
	// ErrOutOfRange is returned for navigation to an index outside the registry.
	ErrOutOfRange = errors.New("document index out of range")
	// ErrSave wraps a failed snapshot save.
	ErrSave = errors.New("save failed")
	// ErrNoDocument is returned when no document is loaded.
	ErrNoDocument = errors.New("no document loaded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller closed")
)

const defaultQueueSize = 64

// TranscriptService fetches the plain-text transcript of a document.
type TranscriptService interface {
	Transcript(ctx context.Context, id models.DocumentID) (string, error)
}

// FieldService fetches the extracted field values of a document.
type FieldService interface {
	Fields(ctx context.Context, id models.DocumentID) (map[string]models.FieldValue, error)
}

// Controller owns the document registry and the single live document.
// Commands are serialized: a command issued while another is flushing or loading waits for it.
type Controller struct {
	registry    *registry.Registry
	transcripts TranscriptService
	fields      FieldService
	gateway     storage.Gateway
	logger      *zap.Logger

	modes     []models.Mode
	order     []string
	queueSize int
	observer  func(models.SaveResult)

	queue *saveQueue
	state atomic.Int32

	mu     sync.Mutex
	live   *liveDocument
	opened bool
	closed bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithModes sets the annotation modes under review. One snapshot per mode is saved on each flush.
func WithModes(modes ...models.Mode) Option {
	return func(c *Controller) {
		if len(modes) > 0 {
			c.modes = append([]models.Mode(nil), modes...)
		}
	}
}

// WithQueueSize sets how many saves may be queued before a flush blocks.
func WithQueueSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithSaveObserver registers fn to be called with every save result, in save order.
// fn runs on its own goroutine and may call back into the Controller.
func WithSaveObserver(fn func(models.SaveResult)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// WithIndicatorOrder overrides the indicator names and their display order.
func WithIndicatorOrder(order []string) Option {
	return func(c *Controller) {
		if len(order) > 0 {
			c.order = append([]string(nil), order...)
		}
	}
}

// NewController creates a controller over reg. Close must be called to drain pending saves.
func NewController(reg *registry.Registry, transcripts TranscriptService, fields FieldService, gateway storage.Gateway, opts ...Option) *Controller {
	c := &Controller{
		registry:    reg,
		transcripts: transcripts,
		fields:      fields,
		gateway:     gateway,
		modes:       []models.Mode{models.ModeIndicator},
		order:       annotation.IndicatorOrder,
		queueSize:   defaultQueueSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.queue = newSaveQueue(gateway, c.queueSize, c.logger, c.observer)
	return c
}

// State returns the current state without waiting for a running command.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// InFlight returns the number of saves dispatched but not yet completed.
func (c *Controller) InFlight() int64 {
	return c.queue.inFlight.Load()
}

// Modes returns the annotation modes under review.
func (c *Controller) Modes() []models.Mode {
	return append([]models.Mode(nil), c.modes...)
}

func (c *Controller) modeEnabled(mode models.Mode) bool {
	for _, m := range c.modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Open loads the document at the registry's position. An empty registry is not an error;
// the first document added later is loaded then.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.opened = true
	if c.live != nil {
		return nil
	}
	id, ok := c.registry.Current()
	if !ok {
		return nil
	}
	c.state.Store(int32(Loading))
	c.live = c.load(ctx, id)
	c.state.Store(int32(Idle))
	return nil
}

// RequestGoTo flushes the live document and loads the document at index.
// It reports whether the position changed. The same index is a no-op.
func (c *Controller) RequestGoTo(ctx context.Context, index int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	if index == c.registry.Position() && c.live != nil {
		return false, nil
	}
	id, ok := c.registry.At(index)
	if !ok {
		return false, fmt.Errorf("%w: %d (have %d documents)", ErrOutOfRange, index, c.registry.Len())
	}

	c.state.Store(int32(Flushing))
	if c.live != nil {
		c.flush(ctx, false)
	}

	c.state.Store(int32(Loading))
	if err := c.registry.SetPosition(index); err != nil {
		c.state.Store(int32(Idle))
		return false, fmt.Errorf("%w: %w", ErrOutOfRange, err)
	}
	c.live = c.load(ctx, id)
	c.state.Store(int32(Idle))

	if c.logger != nil {
		c.logger.Info("Navigated",
			zap.String("document", string(id)),
			zap.Int("position", index),
			zap.String("progress", c.registry.Progress()))
	}
	return true, nil
}

// RequestNext moves to the following document. It is a no-op at the last position.
func (c *Controller) RequestNext(ctx context.Context) (bool, error) {
	c.mu.Lock()
	next := c.registry.Position() + 1
	last := next >= c.registry.Len()
	c.mu.Unlock()
	if last {
		return false, nil
	}
	return c.RequestGoTo(ctx, next)
}

// RequestPrevious moves to the preceding document. It is a no-op at the first position.
func (c *Controller) RequestPrevious(ctx context.Context) (bool, error) {
	c.mu.Lock()
	prev := c.registry.Position() - 1
	c.mu.Unlock()
	if prev < 0 {
		return false, nil
	}
	return c.RequestGoTo(ctx, prev)
}

// RequestManualSave flushes the live document without moving and waits for the results.
// A failed save leaves the edits in memory; the error wraps ErrSave.
func (c *Controller) RequestManualSave(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.live == nil {
		c.mu.Unlock()
		return ErrNoDocument
	}
	c.state.Store(int32(Flushing))
	waits := c.flush(ctx, true)
	c.state.Store(int32(Idle))
	c.mu.Unlock()

	var errs []error
	for _, done := range waits {
		select {
		case res := <-done:
			if !res.OK {
				errs = append(errs, fmt.Errorf("%w: %s: %s", ErrSave, res.Key, res.Error))
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Join(errs...)
}

// flush resolves and enqueues one snapshot per mode. A save counts as issued once enqueued.
// When wait is set, the returned channels each receive one result.
func (c *Controller) flush(ctx context.Context, wait bool) []chan models.SaveResult {
	var waits []chan models.SaveResult
	for _, mode := range c.modes {
		if c.live.unread[mode] {
			key := annotation.SnapshotKey(c.live.id, mode)
			if c.logger != nil {
				c.logger.Warn("Skipped save of unread snapshot",
					zap.String("document", string(c.live.id)),
					zap.String("key", key))
			}
			if wait {
				done := make(chan models.SaveResult, 1)
				done <- models.SaveResult{DocumentID: c.live.id, Mode: mode, Key: key, Error: errUnread.Error(), At: time.Now()}
				waits = append(waits, done)
			}
			continue
		}
		snap := c.live.snapshot(mode)
		job := &saveJob{
			ctx:  context.WithoutCancel(ctx),
			id:   c.live.id,
			mode: mode,
			key:  snap.Key,
		}
		if wait {
			job.done = make(chan models.SaveResult, 1)
		}

		data, err := snap.Encode()
		if err == nil {
			job.data = data
			err = c.queue.enqueue(job)
		}
		if err != nil {
			if c.logger != nil {
				c.logger.Error("Failed to dispatch snapshot",
					zap.String("document", string(c.live.id)),
					zap.String("key", snap.Key),
					zap.Error(err))
			}
			if wait {
				job.done <- models.SaveResult{DocumentID: c.live.id, Mode: mode, Key: snap.Key, Error: err.Error(), At: time.Now()}
			}
		}
		if wait {
			waits = append(waits, job.done)
		}
	}
	return waits
}

// load fetches the transcript, fields and previous snapshots of id concurrently.
// Fetch failures are logged and replaced by placeholders.
func (c *Controller) load(ctx context.Context, id models.DocumentID) *liveDocument {
	var (
		transcript    string
		transcriptErr error
		fresh         map[string]models.FieldValue
		fieldsErr     error
		previous      = make(map[models.Mode]*annotation.Snapshot, len(c.modes))
		unread        = make(map[models.Mode]bool)
		previousMu    sync.Mutex
	)

	var g errgroup.Group
	g.Go(func() error {
		transcript, transcriptErr = c.transcripts.Transcript(ctx, id)
		return nil
	})
	g.Go(func() error {
		fresh, fieldsErr = c.fields.Fields(ctx, id)
		return nil
	})
	for _, mode := range c.modes {
		g.Go(func() error {
			snap, err := c.loadSnapshot(ctx, id, mode)
			previousMu.Lock()
			previous[mode] = snap
			if err != nil {
				unread[mode] = true
			}
			previousMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	doc := &liveDocument{
		id:                  id,
		transcriptAvailable: transcriptErr == nil,
		fieldsAvailable:     fieldsErr == nil,
		unread:              unread,
	}
	if transcriptErr != nil {
		c.logFetchFailure(id, "transcript", transcriptErr)
	} else {
		doc.transcript = transcript
	}
	var prevIndicators models.IndicatorSnapshot
	if snap := previous[models.ModeIndicator]; snap != nil {
		prevIndicators = snap.Indicators
	}
	if fieldsErr != nil {
		c.logFetchFailure(id, "fields", fieldsErr)
		// Fall back to the values of the last save.
		fresh = make(map[string]models.FieldValue, len(prevIndicators))
		for name, entry := range prevIndicators {
			fresh[name] = models.FieldValue{Value: entry.Value}
		}
	}
	var prevRanges []models.RangeAnnotation
	if snap := previous[models.ModeRange]; snap != nil {
		prevRanges = snap.Ranges
	}
	doc.fields = annotation.LoadFields(c.order, fresh, prevIndicators)
	doc.ranges = annotation.NewRangeSet(doc.transcript, prevRanges)
	return doc
}

// loadSnapshot returns the most recent snapshot of id in mode, preferring one still waiting
// to be saved. It returns nil, nil when there is none, and an error when one exists but
// could not be read.
func (c *Controller) loadSnapshot(ctx context.Context, id models.DocumentID, mode models.Mode) (*annotation.Snapshot, error) {
	key := annotation.SnapshotKey(id, mode)
	data, ok := c.queue.lookup(key)
	if !ok {
		var err error
		data, err = c.gateway.Load(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			c.logFetchFailure(id, "snapshot "+key, err)
			return nil, err
		}
	}
	snap, err := annotation.DecodeSnapshot(id, mode, data)
	if err != nil {
		c.logFetchFailure(id, "snapshot "+key, err)
		return nil, err
	}
	return snap, nil
}

func (c *Controller) logFetchFailure(id models.DocumentID, what string, err error) {
	if c.logger != nil {
		c.logger.Warn("Failed to fetch document content",
			zap.String("document", string(id)),
			zap.String("content", what),
			zap.Error(err))
	}
}

// AddDocuments appends ids to the registry and returns how many were new. When the
// controller was opened on an empty registry, the first added document is loaded.
func (c *Controller) AddDocuments(ctx context.Context, ids ...models.DocumentID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	n := c.registry.Append(ids...)
	if n > 0 && c.opened && c.live == nil {
		if id, ok := c.registry.Current(); ok {
			c.state.Store(int32(Loading))
			c.live = c.load(ctx, id)
			c.state.Store(int32(Idle))
		}
	}
	return n
}

// edit runs fn on the live document when mode is enabled. It reports whether fn changed anything.
func (c *Controller) edit(mode models.Mode, op string, fn func(doc *liveDocument) error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := ErrNoDocument
	switch {
	case c.closed:
		err = ErrClosed
	case !c.modeEnabled(mode):
		err = fmt.Errorf("%w: %s", annotation.ErrModeDisabled, mode)
	case c.live != nil:
		if err = fn(c.live); err == nil {
			delete(c.live.unread, mode)
		}
	}
	if err != nil {
		if c.logger != nil {
			c.logger.Debug("Ignored edit", zap.String("op", op), zap.Error(err))
		}
		return false
	}
	return true
}

var (
	errNoMatch = errors.New("no matching annotation")
	errUnread  = errors.New("stored snapshot could not be read; not overwritten")
)

// AddRange annotates the transcript span [start, end). Invalid ranges are ignored.
func (c *Controller) AddRange(start, end int, text, comment string) bool {
	return c.edit(models.ModeRange, "add_range", func(doc *liveDocument) error {
		_, err := doc.ranges.Add(start, end, text, comment)
		return err
	})
}

// RemoveRange deletes the span annotations whose text matches.
func (c *Controller) RemoveRange(text string) bool {
	return c.edit(models.ModeRange, "remove_range", func(doc *liveDocument) error {
		if doc.ranges.Remove(text) == 0 {
			return errNoMatch
		}
		return nil
	})
}

// RemoveRangeAt deletes the span annotations covering exactly [start, end).
func (c *Controller) RemoveRangeAt(start, end int) bool {
	return c.edit(models.ModeRange, "remove_range", func(doc *liveDocument) error {
		if doc.ranges.RemoveAt(start, end) == 0 {
			return errNoMatch
		}
		return nil
	})
}

// SetRangeComment replaces the comment on the span annotations covering exactly [start, end).
func (c *Controller) SetRangeComment(start, end int, comment string) bool {
	return c.edit(models.ModeRange, "set_range_comment", func(doc *liveDocument) error {
		if !doc.ranges.SetComment(start, end, comment) {
			return errNoMatch
		}
		return nil
	})
}

// SetIndicatorComment replaces the comment on an indicator. Unknown names are ignored.
func (c *Controller) SetIndicatorComment(name, comment string) bool {
	return c.edit(models.ModeIndicator, "set_indicator_comment", func(doc *liveDocument) error {
		return doc.fields.SetComment(name, comment)
	})
}

// Current returns a copy of the live state.
func (c *Controller) Current() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Position:   c.registry.Position(),
		Total:      c.registry.Len(),
		Progress:   c.registry.Progress(),
		State:      c.State(),
		Modes:      c.Modes(),
		Indicators: []models.IndicatorAnnotation{},
		Ranges:     []models.RangeAnnotation{},
		InFlight:   c.InFlight(),
		Unsaved:    c.queue.unsaved(),
		LastSave:   c.queue.lastResult(),
	}
	if c.live != nil {
		v.DocumentID = c.live.id
		v.Transcript = c.live.transcript
		v.TranscriptAvailable = c.live.transcriptAvailable
		v.FieldsAvailable = c.live.fieldsAvailable
		v.Indicators = c.live.fields.Annotations()
		v.Ranges = c.live.ranges.Annotations()
	}
	return v
}

// Documents returns the registry listing.
func (c *Controller) Documents() []models.DocumentEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Entries()
}

// Close flushes the live document and waits for queued saves to finish or ctx to end.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.live != nil {
		c.state.Store(int32(Flushing))
		c.flush(ctx, false)
		c.state.Store(int32(Idle))
	}
	c.closed = true
	c.mu.Unlock()
	return c.queue.close(ctx)
}
