package navigation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JingePHA/eval-ui/internal/annotation"
	"github.com/JingePHA/eval-ui/internal/models"
	"github.com/JingePHA/eval-ui/internal/registry"
	"github.com/JingePHA/eval-ui/internal/storage"
)

type recordingGateway struct {
	storage.Gateway

	mu       sync.Mutex
	saves    []string
	fail     error
	loadFail error
	release  chan struct{}
	saved    chan string
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{Gateway: storage.NewMemoryGateway(), saved: make(chan string, 16)}
}

func (g *recordingGateway) Save(ctx context.Context, key string, data []byte) error {
	if g.release != nil {
		<-g.release
	}
	g.mu.Lock()
	g.saves = append(g.saves, key)
	fail := g.fail
	g.mu.Unlock()
	select {
	case g.saved <- key:
	default:
	}
	if fail != nil {
		return fail
	}
	return g.Gateway.Save(ctx, key, data)
}

func (g *recordingGateway) Load(ctx context.Context, key string) ([]byte, error) {
	g.mu.Lock()
	fail := g.loadFail
	g.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return g.Gateway.Load(ctx, key)
}

func (g *recordingGateway) setLoadFail(err error) {
	g.mu.Lock()
	g.loadFail = err
	g.mu.Unlock()
}

func (g *recordingGateway) saveKeys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.saves...)
}

type fakeContent struct {
	mu               sync.Mutex
	transcripts      map[models.DocumentID]string
	fields           map[models.DocumentID]map[string]models.FieldValue
	err              error
	transcriptCalls  int
	fieldCalls       int
	beforeTranscript func(id models.DocumentID)
}

func (f *fakeContent) Transcript(ctx context.Context, id models.DocumentID) (string, error) {
	f.mu.Lock()
	f.transcriptCalls++
	hook, err := f.beforeTranscript, f.err
	text, ok := f.transcripts[id]
	f.mu.Unlock()
	if hook != nil {
		hook(id)
	}
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no transcript for %s", id)
	}
	return text, nil
}

func (f *fakeContent) Fields(ctx context.Context, id models.DocumentID) (map[string]models.FieldValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fieldCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.fields[id], nil
}

func (f *fakeContent) loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transcriptCalls + f.fieldCalls
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		transcripts: map[models.DocumentID]string{
			"a.PDF": "tumor margin involved by carcinoma",
			"b.PDF": "no residual tumor",
			"c.PDF": "benign",
		},
		fields: map[models.DocumentID]map[string]models.FieldValue{
			"a.PDF": {"T": {Value: "T2"}, "Margins": {Value: "involved"}},
			"b.PDF": {"T": {Value: "T1"}},
		},
	}
}

func newTestController(t *testing.T, gw *recordingGateway, content *fakeContent, opts ...Option) *Controller {
	t.Helper()
	reg := registry.New([]models.DocumentID{"a.PDF", "b.PDF", "c.PDF"})
	c := NewController(reg, content, content, gw, opts...)
	t.Cleanup(func() {
		if gw.release != nil {
			select {
			case <-gw.release:
			default:
				close(gw.release)
			}
		}
		_ = c.Close(context.Background())
	})
	require.NoError(t, c.Open(context.Background()))
	return c
}

func indicator(v View, name string) models.IndicatorAnnotation {
	for _, a := range v.Indicators {
		if a.Indicator == name {
			return a
		}
	}
	return models.IndicatorAnnotation{}
}

func storedIndicators(t *testing.T, gw storage.Gateway, id models.DocumentID) models.IndicatorSnapshot {
	t.Helper()
	data, err := gw.Load(context.Background(), annotation.SnapshotKey(id, models.ModeIndicator))
	require.NoError(t, err)
	snap, err := annotation.DecodeSnapshot(id, models.ModeIndicator, data)
	require.NoError(t, err)
	return snap.Indicators
}

func TestOpen_LoadsFirstDocument(t *testing.T) {
	gw := newRecordingGateway()
	prev, err := annotation.NewIndicatorSnapshot("a.PDF", models.IndicatorSnapshot{
		"T": {Value: "T2", Comment: "recheck"},
	}).Encode()
	require.NoError(t, err)
	require.NoError(t, gw.Gateway.Save(context.Background(), "a_PI_annotated.json", prev))

	c := newTestController(t, gw, newFakeContent())
	v := c.Current()

	assert.Equal(t, models.DocumentID("a.PDF"), v.DocumentID)
	assert.Equal(t, "1 / 3", v.Progress)
	assert.Equal(t, Idle, v.State)
	assert.True(t, v.TranscriptAvailable)
	assert.Len(t, v.Indicators, len(annotation.IndicatorOrder))
	assert.Equal(t, models.IndicatorAnnotation{Indicator: "T", OriginalValue: "T2", Comment: "recheck"}, indicator(v, "T"))
	assert.Equal(t, annotation.NotAvailable, indicator(v, "Diagnosis").OriginalValue)
}

func TestRequestGoTo_SaveIssuedBeforeNextLoadCompletes(t *testing.T) {
	gw := newRecordingGateway()
	content := newFakeContent()
	c := newTestController(t, gw, content)
	require.True(t, c.SetIndicatorComment("T", "check staging"))

	sawSave := false
	content.mu.Lock()
	content.beforeTranscript = func(id models.DocumentID) {
		if id != "b.PDF" {
			return
		}
		select {
		case key := <-gw.saved:
			sawSave = key == "a_PI_annotated.json"
		case <-time.After(2 * time.Second):
		}
	}
	content.mu.Unlock()

	moved, err := c.RequestGoTo(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.True(t, sawSave, "save for the document being left must reach the gateway before the next load completes")

	v := c.Current()
	assert.Equal(t, models.DocumentID("b.PDF"), v.DocumentID)
	assert.Equal(t, "T1", indicator(v, "T").OriginalValue)
	assert.Equal(t, []string{"a_PI_annotated.json"}, gw.saveKeys())

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, "check staging", storedIndicators(t, gw, "a.PDF")["T"].Comment)
}

func TestRequestGoTo_SameIndexIsNoop(t *testing.T) {
	gw := newRecordingGateway()
	content := newFakeContent()
	c := newTestController(t, gw, content)
	loadsBefore := content.loads()

	moved, err := c.RequestGoTo(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, loadsBefore, content.loads())
	assert.Empty(t, gw.saveKeys())
	assert.Zero(t, c.InFlight())
}

func TestRequestGoTo_OutOfRange(t *testing.T) {
	gw := newRecordingGateway()
	c := newTestController(t, gw, newFakeContent())

	for _, index := range []int{-1, 3} {
		moved, err := c.RequestGoTo(context.Background(), index)
		assert.ErrorIs(t, err, ErrOutOfRange)
		assert.False(t, moved)
	}
	assert.Equal(t, 0, c.Current().Position)
	assert.Empty(t, gw.saveKeys())
}

func TestRequestNextPrevious_Clamped(t *testing.T) {
	c := newTestController(t, newRecordingGateway(), newFakeContent())
	ctx := context.Background()

	moved, err := c.RequestPrevious(ctx)
	require.NoError(t, err)
	assert.False(t, moved)

	for i := 1; i <= 2; i++ {
		moved, err = c.RequestNext(ctx)
		require.NoError(t, err)
		assert.True(t, moved)
		assert.Equal(t, i, c.Current().Position)
	}
	moved, err = c.RequestNext(ctx)
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = c.RequestPrevious(ctx)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, 1, c.Current().Position)

	statuses := map[models.DocumentID]models.DocumentStatus{}
	for _, e := range c.Documents() {
		statuses[e.ID] = e.Status
	}
	assert.Equal(t, models.StatusViewed, statuses["a.PDF"])
	assert.Equal(t, models.StatusCurrent, statuses["b.PDF"])
	assert.Equal(t, models.StatusViewed, statuses["c.PDF"])
}

func TestReturnToDocument_SeesPendingSaves(t *testing.T) {
	gw := newRecordingGateway()
	gw.release = make(chan struct{})
	c := newTestController(t, gw, newFakeContent())
	ctx := context.Background()

	require.True(t, c.SetIndicatorComment("T", "first"))
	_, err := c.RequestGoTo(ctx, 1)
	require.NoError(t, err)
	_, err = c.RequestGoTo(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "first", indicator(c.Current(), "T").Comment)

	require.True(t, c.SetIndicatorComment("T", "second"))
	_, err = c.RequestGoTo(ctx, 1)
	require.NoError(t, err)
	assert.Positive(t, c.InFlight())

	close(gw.release)
	require.NoError(t, c.Close(ctx))

	assert.Equal(t, "second", storedIndicators(t, gw, "a.PDF")["T"].Comment)
	assert.Zero(t, c.InFlight())
}

func TestRequestManualSave(t *testing.T) {
	gw := newRecordingGateway()
	var (
		mu      sync.Mutex
		results []models.SaveResult
	)
	c := newTestController(t, gw, newFakeContent(), WithSaveObserver(func(r models.SaveResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}))

	require.True(t, c.SetIndicatorComment("Margins", "re-excised"))
	require.NoError(t, c.RequestManualSave(context.Background()))

	assert.Equal(t, 0, c.Current().Position)
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, "re-excised", storedIndicators(t, gw, "a.PDF")["Margins"].Comment)

	last := c.Current().LastSave
	require.NotNil(t, last)
	assert.True(t, last.OK)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRequestManualSave_FailureKeepsEdits(t *testing.T) {
	gw := newRecordingGateway()
	gw.fail = errors.New("bucket unreachable")
	c := newTestController(t, gw, newFakeContent())
	ctx := context.Background()

	require.True(t, c.SetIndicatorComment("T", "keep me"))
	err := c.RequestManualSave(ctx)
	require.ErrorIs(t, err, ErrSave)
	assert.Contains(t, err.Error(), "bucket unreachable")

	v := c.Current()
	assert.Equal(t, "keep me", indicator(v, "T").Comment)
	assert.Equal(t, []string{"a_PI_annotated.json"}, v.Unsaved)
	require.NotNil(t, v.LastSave)
	assert.False(t, v.LastSave.OK)

	// Navigation still works, and coming back shows the unsaved edits.
	_, err = c.RequestGoTo(ctx, 1)
	require.NoError(t, err)
	_, err = c.RequestGoTo(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "keep me", indicator(c.Current(), "T").Comment)
}

func TestRequestManualSave_NoDocument(t *testing.T) {
	c := NewController(registry.New(nil), newFakeContent(), newFakeContent(), newRecordingGateway())
	defer c.Close(context.Background())
	require.NoError(t, c.Open(context.Background()))
	assert.ErrorIs(t, c.RequestManualSave(context.Background()), ErrNoDocument)
}

func TestFetchFailure_UsesPlaceholders(t *testing.T) {
	content := newFakeContent()
	content.err = errors.New("service down")
	c := newTestController(t, newRecordingGateway(), content)

	v := c.Current()
	assert.Equal(t, models.DocumentID("a.PDF"), v.DocumentID)
	assert.False(t, v.TranscriptAvailable)
	assert.False(t, v.FieldsAvailable)
	assert.Empty(t, v.Transcript)
	for _, a := range v.Indicators {
		assert.Equal(t, annotation.NotAvailable, a.OriginalValue, a.Indicator)
	}

	moved, err := c.RequestNext(context.Background())
	require.NoError(t, err)
	assert.True(t, moved)
}

func seedIndicators(t *testing.T, gw *recordingGateway, id models.DocumentID, snap models.IndicatorSnapshot) {
	t.Helper()
	data, err := annotation.NewIndicatorSnapshot(id, snap).Encode()
	require.NoError(t, err)
	require.NoError(t, gw.Gateway.Save(context.Background(), annotation.SnapshotKey(id, models.ModeIndicator), data))
}

func TestUnreadSnapshot_IsNotOverwritten(t *testing.T) {
	gw := newRecordingGateway()
	seedIndicators(t, gw, "a.PDF", models.IndicatorSnapshot{"T": {Value: "T2", Comment: "recheck"}})
	gw.setLoadFail(errors.New("connection reset"))
	c := newTestController(t, gw, newFakeContent())
	gw.setLoadFail(nil)
	ctx := context.Background()

	assert.Empty(t, indicator(c.Current(), "T").Comment)
	err := c.RequestManualSave(ctx)
	require.ErrorIs(t, err, ErrSave)
	assert.Contains(t, err.Error(), "not overwritten")

	_, err = c.RequestGoTo(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, c.Close(ctx))

	assert.NotContains(t, gw.saveKeys(), "a_PI_annotated.json")
	assert.Equal(t, "recheck", storedIndicators(t, gw, "a.PDF")["T"].Comment)
}

func TestUnreadSnapshot_SavedOnceEdited(t *testing.T) {
	gw := newRecordingGateway()
	seedIndicators(t, gw, "a.PDF", models.IndicatorSnapshot{"T": {Value: "T2", Comment: "recheck"}})
	gw.setLoadFail(errors.New("connection reset"))
	c := newTestController(t, gw, newFakeContent(), WithModes(models.ModeIndicator, models.ModeRange))
	gw.setLoadFail(nil)
	ctx := context.Background()

	require.True(t, c.SetIndicatorComment("T", "rewritten"))
	_, err := c.RequestGoTo(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, c.Close(ctx))

	// Only the edited mode is written; the range snapshot was never read either.
	assert.Contains(t, gw.saveKeys(), "a_PI_annotated.json")
	assert.NotContains(t, gw.saveKeys(), "a_annotations.json")
	assert.Equal(t, "rewritten", storedIndicators(t, gw, "a.PDF")["T"].Comment)
}

func TestFieldsFailure_KeepsStoredValues(t *testing.T) {
	gw := newRecordingGateway()
	seedIndicators(t, gw, "a.PDF", models.IndicatorSnapshot{"T": {Value: "T3", Comment: "upstaged"}})
	content := newFakeContent()
	content.err = errors.New("extraction down")
	c := newTestController(t, gw, content)
	ctx := context.Background()

	v := c.Current()
	assert.False(t, v.FieldsAvailable)
	assert.Equal(t, models.IndicatorAnnotation{Indicator: "T", OriginalValue: "T3", Comment: "upstaged"}, indicator(v, "T"))
	assert.Equal(t, annotation.NotAvailable, indicator(v, "N").OriginalValue)

	_, err := c.RequestGoTo(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, c.Close(ctx))
	stored := storedIndicators(t, gw, "a.PDF")
	assert.Equal(t, "T3", stored["T"].Value)
	assert.Equal(t, "upstaged", stored["T"].Comment)
}

func TestSaveObserver_MayCallController(t *testing.T) {
	gw := newRecordingGateway()
	gw.release = make(chan struct{})
	var (
		c     *Controller
		calls atomic.Int32
	)
	c = newTestController(t, gw, newFakeContent(), WithQueueSize(1), WithSaveObserver(func(models.SaveResult) {
		_ = c.Current()
		calls.Add(1)
	}))
	ctx := context.Background()

	// The worker holds the first save and the buffer holds the second.
	for _, i := range []int{1, 2} {
		_, err := c.RequestGoTo(ctx, i)
		require.NoError(t, err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.RequestGoTo(ctx, 0)
	}()
	require.Eventually(t, func() bool { return c.State() == Flushing }, 2*time.Second, 5*time.Millisecond)

	close(gw.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("navigation blocked behind the save observer")
	}
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, int32(4), calls.Load())
}

func TestRangeMode_FlushCommitsResolvedSet(t *testing.T) {
	gw := newRecordingGateway()
	c := newTestController(t, gw, newFakeContent(), WithModes(models.ModeRange))
	ctx := context.Background()

	require.True(t, c.AddRange(0, 12, "tumor margin", "outer"))
	require.True(t, c.AddRange(6, 12, "margin", "inner"))
	require.True(t, c.AddRange(0, 12, "tumor margin", "duplicate"))
	assert.False(t, c.AddRange(5, 5, "", ""))
	assert.False(t, c.SetIndicatorComment("T", "indicator mode is off"))

	_, err := c.RequestGoTo(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, c.Close(ctx))

	assert.Equal(t, []string{"a_annotations.json"}, gw.saveKeys())
	data, err := gw.Load(ctx, "a_annotations.json")
	require.NoError(t, err)
	snap, err := annotation.DecodeSnapshot("a.PDF", models.ModeRange, data)
	require.NoError(t, err)
	require.Len(t, snap.Ranges, 1)
	assert.Equal(t, "outer", snap.Ranges[0].Comment)
	// "tumor margin" is followed by a space, so the stored span covers it.
	assert.Equal(t, 13, snap.Ranges[0].End)
}

func TestRangeEdits(t *testing.T) {
	c := newTestController(t, newRecordingGateway(), newFakeContent(), WithModes(models.ModeRange, models.ModeIndicator))

	require.True(t, c.AddRange(5, 12, "tumor margin", ""))
	require.True(t, c.RemoveRange("tumor margin"))
	assert.Empty(t, c.Current().Ranges)
	assert.False(t, c.RemoveRange("tumor margin"))

	require.True(t, c.AddRange(0, 5, "tumor", ""))
	assert.True(t, c.SetRangeComment(0, 6, "spans the space"))
	assert.False(t, c.SetRangeComment(1, 2, "nothing there"))
	assert.Equal(t, "spans the space", c.Current().Ranges[0].Comment)
	assert.True(t, c.RemoveRangeAt(0, 6))
	assert.False(t, c.RemoveRangeAt(0, 6))

	assert.False(t, c.SetIndicatorComment("Grade", "unknown"))
	assert.True(t, c.SetIndicatorComment("N", "ok"))
}

func TestRequestGoTo_SavesEveryMode(t *testing.T) {
	gw := newRecordingGateway()
	c := newTestController(t, gw, newFakeContent(), WithModes(models.ModeIndicator, models.ModeRange))
	ctx := context.Background()

	_, err := c.RequestGoTo(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, c.Close(ctx))
	assert.ElementsMatch(t, []string{"a_PI_annotated.json", "a_annotations.json"}, gw.saveKeys())
}

func TestAddDocuments_LoadsFirstIntoEmptyRegistry(t *testing.T) {
	content := newFakeContent()
	c := NewController(registry.New(nil), content, content, newRecordingGateway())
	defer c.Close(context.Background())
	ctx := context.Background()
	require.NoError(t, c.Open(ctx))
	assert.Empty(t, c.Current().DocumentID)

	assert.Equal(t, 2, c.AddDocuments(ctx, "b.PDF", "c.PDF", "b.PDF"))
	v := c.Current()
	assert.Equal(t, models.DocumentID("b.PDF"), v.DocumentID)
	assert.Equal(t, "1 / 2", v.Progress)

	assert.Equal(t, 1, c.AddDocuments(ctx, "a.PDF"))
	assert.Equal(t, models.DocumentID("b.PDF"), c.Current().DocumentID)
	assert.Equal(t, 3, c.Current().Total)
}

func TestClose_FlushesAndRejectsCommands(t *testing.T) {
	gw := newRecordingGateway()
	content := newFakeContent()
	c := NewController(registry.New([]models.DocumentID{"a.PDF"}), content, content, gw)
	ctx := context.Background()
	require.NoError(t, c.Open(ctx))
	require.True(t, c.SetIndicatorComment("M", "M0 confirmed"))

	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, "M0 confirmed", storedIndicators(t, gw, "a.PDF")["M"].Comment)

	_, err := c.RequestGoTo(ctx, 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.RequestManualSave(ctx), ErrClosed)
	assert.False(t, c.SetIndicatorComment("M", "late"))
	assert.Zero(t, c.AddDocuments(ctx, "z.PDF"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "flushing", Flushing.String())
	assert.Equal(t, "loading", Loading.String())
	text, err := Loading.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "loading", string(text))
}
