package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"interactive-video-service/internal/domain"
	"interactive-video-service/internal/player"
)

func TestEngineScenario(t *testing.T) {
	h := newHarness(t, "u1", nil, question("q1", 30))

	h.play()
	h.advance(30200 * time.Millisecond)
	events := h.engine.Tick(h.ctx, h.clock.now())
	require.Len(t, events, 2)
	require.Equal(t, domain.EventQuestionAsked, events[1].Type)
	require.Equal(t, "q1", events[1].Question.ID)
	require.False(t, h.player.Playing(), "question must pause playback")
	require.Equal(t, domain.PhaseAsked, h.engine.machine.Phase())

	events, resolveID, err := h.engine.Select(h.ctx, 1, h.clock.now())
	require.NoError(t, err)
	require.Equal(t, "q1", resolveID)
	require.True(t, events[0].Feedback.Correct)
	require.Len(t, h.results.records(), 1)
	rec := h.results.records()[0]
	require.Equal(t, 100, rec.Score)
	require.Equal(t, 1, rec.TotalQuestions)
	require.Equal(t, "q1", rec.QuestionID)

	events = h.engine.Resolve(resolveID)
	require.Len(t, events, 1)
	require.Equal(t, domain.EventResumed, events[0].Type)
	require.True(t, h.player.Playing())
	require.Equal(t, domain.PhaseIdle, h.engine.machine.Phase())

	// Seek back and cross the trigger again: nothing fires.
	_, err = h.engine.Seek(10)
	require.NoError(t, err)
	for i := 0; i < 25; i++ {
		h.advance(time.Second)
		for _, ev := range h.engine.Tick(h.ctx, h.clock.now()) {
			require.NotEqual(t, domain.EventQuestionAsked, ev.Type)
		}
	}
	require.Greater(t, h.player.CurrentTime(), 30.0)
}

func TestEngineIncorrectAnswerScoresZero(t *testing.T) {
	h := newHarness(t, "u1", nil, question("q1", 5))
	h.play()
	h.advance(5 * time.Second)
	h.engine.Tick(h.ctx, h.clock.now())

	events, _, err := h.engine.Select(h.ctx, 2, h.clock.now())
	require.NoError(t, err)
	require.False(t, events[0].Feedback.Correct)
	require.Equal(t, 1, events[0].Feedback.CorrectOption)
	require.Equal(t, 0, h.results.records()[0].Score)
	require.Equal(t, 1, h.results.records()[0].TotalQuestions)
}

func TestEngineSelectIsOneShot(t *testing.T) {
	h := newHarness(t, "u1", nil, question("q1", 5))

	_, _, err := h.engine.Select(h.ctx, 1, h.clock.now())
	require.ErrorIs(t, err, domain.ErrNoActiveQuestion)

	h.play()
	h.advance(5 * time.Second)
	h.engine.Tick(h.ctx, h.clock.now())

	_, _, err = h.engine.Select(h.ctx, 7, h.clock.now())
	require.ErrorIs(t, err, domain.ErrInvalidOption)
	require.Equal(t, domain.PhaseAsked, h.engine.machine.Phase())

	_, _, err = h.engine.Select(h.ctx, 0, h.clock.now())
	require.NoError(t, err)
	_, _, err = h.engine.Select(h.ctx, 1, h.clock.now())
	require.ErrorIs(t, err, domain.ErrAlreadyAnswered)
	require.Len(t, h.results.records(), 1)
}

func TestEngineNeverPlaysWhileQuestionActive(t *testing.T) {
	h := newHarness(t, "u1", nil, question("q1", 5))
	h.play()
	h.advance(5 * time.Second)
	h.engine.Tick(h.ctx, h.clock.now())

	_, err := h.engine.Play()
	require.ErrorIs(t, err, domain.ErrQuestionActive)
	require.False(t, h.player.Playing())

	_, _, err = h.engine.Select(h.ctx, 1, h.clock.now())
	require.NoError(t, err)
	_, err = h.engine.Play()
	require.ErrorIs(t, err, domain.ErrQuestionActive)
	require.False(t, h.player.Playing())

	// Stale resolution for another question is ignored.
	require.Empty(t, h.engine.Resolve("other"))
	require.False(t, h.player.Playing())
}

func TestEngineSkipsProgressWhileQuestionActive(t *testing.T) {
	h := newHarness(t, "u1", nil, question("q1", 5))
	h.play()
	h.advance(5 * time.Second)
	h.engine.Tick(h.ctx, h.clock.now())
	writes := len(h.progress.writes())

	h.advance(time.Second)
	require.Empty(t, h.engine.Tick(h.ctx, h.clock.now()))
	require.Len(t, h.progress.writes(), writes)
}

func TestEngineProgressFraction(t *testing.T) {
	h := newHarnessWithDuration(t, "u1", 600, nil)
	_, err := h.engine.Seek(300)
	require.NoError(t, err)
	h.engine.Tick(h.ctx, h.clock.now())

	writes := h.progress.writes()
	require.Len(t, writes, 1)
	require.Equal(t, 0.5, writes[0].Fraction)
	require.Equal(t, 300, writes[0].WatchTime)
	require.Equal(t, "u1", writes[0].ViewerID)
	require.Equal(t, "video-1", writes[0].VideoID)

	_, _ = h.engine.Seek(1000)
	h.engine.Tick(h.ctx, h.clock.now())
	writes = h.progress.writes()
	require.Equal(t, 1.0, writes[len(writes)-1].Fraction)
}

func TestEngineWatchTimeNeverDecreases(t *testing.T) {
	h := newHarnessWithDuration(t, "u1", 600, nil)
	_, _ = h.engine.Seek(120)
	h.engine.Tick(h.ctx, h.clock.now())
	_, _ = h.engine.Seek(30)
	h.engine.Tick(h.ctx, h.clock.now())

	writes := h.progress.writes()
	require.Equal(t, 120, writes[1].WatchTime)
	require.Equal(t, 0.05, writes[1].Fraction)
}

func TestEngineResumesFromStoredProgress(t *testing.T) {
	stored := &domain.ProgressRecord{ViewerID: "u1", VideoID: "video-1", Fraction: 0.4}
	h := newHarnessWithDuration(t, "u1", 600, stored)

	require.Equal(t, 240.0, h.player.CurrentTime())
	require.Empty(t, h.progress.writes(), "resume must happen before the first tick")
}

func TestEngineAnonymousViewerPersistsNothing(t *testing.T) {
	h := newHarness(t, domain.AnonymousViewer, nil, question("q1", 1))
	h.play()
	h.advance(time.Second)
	events := h.engine.Tick(h.ctx, h.clock.now())
	require.Len(t, events, 2)

	events, _, err := h.engine.Select(h.ctx, 1, h.clock.now())
	require.NoError(t, err)
	require.Equal(t, 100, events[0].Feedback.Score)
	require.Empty(t, h.progress.writes())
	require.Empty(t, h.results.records())
}

func TestEngineResultFailureDoesNotBlockResume(t *testing.T) {
	h := newHarness(t, "u1", nil, question("q1", 5))
	h.results.err = errors.New("store down")
	h.play()
	h.advance(5 * time.Second)
	h.engine.Tick(h.ctx, h.clock.now())

	_, id, err := h.engine.Select(h.ctx, 1, h.clock.now())
	require.NoError(t, err)
	require.NotEmpty(t, h.engine.Resolve(id))
	require.True(t, h.player.Playing())
}

func TestEngineCloseAbandonsFeedback(t *testing.T) {
	h := newHarness(t, "u1", nil, question("q1", 5))
	h.play()
	h.advance(5 * time.Second)
	h.engine.Tick(h.ctx, h.clock.now())
	_, id, err := h.engine.Select(h.ctx, 1, h.clock.now())
	require.NoError(t, err)
	writes := len(h.progress.writes())

	h.engine.Close()
	require.Empty(t, h.engine.Resolve(id))
	require.False(t, h.player.Playing())
	require.Empty(t, h.engine.Tick(h.ctx, h.clock.now()))
	require.Len(t, h.progress.writes(), writes)

	_, err = h.engine.Play()
	require.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestEngineNextQuestionAfterResume(t *testing.T) {
	h := newHarness(t, "u1", nil, question("q1", 5), question("q2", 5.5))
	h.play()
	h.advance(5 * time.Second)
	events := h.engine.Tick(h.ctx, h.clock.now())
	require.Equal(t, "q1", events[1].Question.ID)

	_, id, _ := h.engine.Select(h.ctx, 1, h.clock.now())
	h.engine.Resolve(id)

	events = h.engine.Tick(h.ctx, h.clock.now())
	require.Len(t, events, 2)
	require.Equal(t, "q2", events[1].Question.ID)
}

func TestEngineReplayAsksQuestionsAgain(t *testing.T) {
	h := newHarness(t, "u1", nil, question("q1", 5))
	h.play()
	h.advance(5 * time.Second)
	h.engine.Tick(h.ctx, h.clock.now())

	_, err := h.engine.Replay()
	require.ErrorIs(t, err, domain.ErrQuestionActive)

	_, id, err := h.engine.Select(h.ctx, 1, h.clock.now())
	require.NoError(t, err)
	h.engine.Resolve(id)
	h.advance(10 * time.Second)
	h.engine.Tick(h.ctx, h.clock.now())
	require.True(t, h.engine.scheduler.hasFired("q1"))

	events, err := h.engine.Replay()
	require.NoError(t, err)
	require.Equal(t, domain.EventState, events[0].Type)
	require.Zero(t, h.player.CurrentTime())
	require.True(t, h.player.Playing())
	require.False(t, h.engine.scheduler.hasFired("q1"))

	h.advance(5 * time.Second)
	events = h.engine.Tick(h.ctx, h.clock.now())
	require.Equal(t, domain.EventQuestionAsked, events[len(events)-1].Type)
	require.Equal(t, "q1", events[len(events)-1].Question.ID)

	h.engine.Close()
	_, err = h.engine.Replay()
	require.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestEngineResultSurvivesSessionTeardown(t *testing.T) {
	tasks := NewDispatcher(1, 8, time.Second, zap.NewNop())
	started := make(chan struct{})
	release := make(chan struct{})
	require.True(t, tasks.Submit(context.Background(), "busy", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	h := newHarnessWithTasks(t, "u1", 120, nil, tasks, question("q1", 5))
	ctx, cancel := context.WithCancel(context.Background())
	h.ctx = ctx
	h.play()
	h.advance(5 * time.Second)
	events := h.engine.Tick(ctx, h.clock.now())
	require.Equal(t, domain.EventQuestionAsked, events[len(events)-1].Type)

	_, _, err := h.engine.Select(ctx, 1, h.clock.now())
	require.NoError(t, err)
	require.Empty(t, h.results.records(), "worker is still busy")

	// The viewer disconnects right after answering.
	cancel()
	h.engine.Close()
	close(release)
	require.NoError(t, tasks.Close())

	records := h.results.records()
	require.Len(t, records, 1)
	require.Equal(t, "q1", records[0].QuestionID)
	require.Equal(t, CorrectScore, records[0].Score)
}

// harness drives an Engine deterministically: the clock only moves when the
// test advances it and persistence runs inline.
type harness struct {
	t        *testing.T
	ctx      context.Context
	clock    *testClock
	player   *player.Virtual
	engine   *Engine
	progress *fakeProgress
	results  *fakeResults
}

func newHarness(t *testing.T, viewerID string, stored *domain.ProgressRecord, questions ...domain.Question) *harness {
	return newHarnessWithDuration(t, viewerID, 120, stored, questions...)
}

func newHarnessWithDuration(t *testing.T, viewerID string, duration float64, stored *domain.ProgressRecord, questions ...domain.Question) *harness {
	t.Helper()
	return newHarnessWithTasks(t, viewerID, duration, stored, inlineTasks{}, questions...)
}

func newHarnessWithTasks(t *testing.T, viewerID string, duration float64, stored *domain.ProgressRecord, tasks TaskRunner, questions ...domain.Question) *harness {
	t.Helper()
	clock := &testClock{t: time.Unix(1700000000, 0)}
	p := player.NewVirtualWithClock(duration, clock.now)
	h := &harness{
		t:        t,
		ctx:      context.Background(),
		clock:    clock,
		player:   p,
		progress: &fakeProgress{},
		results:  &fakeResults{},
	}
	h.engine = NewEngine(EngineConfig{
		SessionID: "session-1",
		ViewerID:  viewerID,
		Data: domain.SessionData{
			Video:     domain.VideoRef{ID: "video-1", URL: "https://cdn/video-1.mp4", Duration: duration},
			Questions: questions,
			Progress:  stored,
		},
		Player:        p,
		TriggerWindow: DefaultTriggerWindow,
		Progress:      h.progress,
		Results:       h.results,
		Tasks:         tasks,
		Logger:        zap.NewNop(),
	})
	return h
}

func (h *harness) play() {
	_, err := h.engine.Play()
	require.NoError(h.t, err)
}

func (h *harness) advance(d time.Duration) {
	h.clock.advance(d)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type inlineTasks struct{}

func (inlineTasks) Submit(ctx context.Context, _ string, fn func(ctx context.Context) error) bool {
	if ctx.Err() != nil {
		return false
	}
	_ = fn(ctx)
	return true
}

type fakeProgress struct {
	mu     sync.Mutex
	err    error
	stored []domain.ProgressRecord
}

func (f *fakeProgress) FetchProgress(_ context.Context, viewerID, videoID string) (*domain.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.stored) - 1; i >= 0; i-- {
		if f.stored[i].ViewerID == viewerID && f.stored[i].VideoID == videoID {
			rec := f.stored[i]
			return &rec, nil
		}
	}
	return nil, f.err
}

func (f *fakeProgress) UpsertProgress(_ context.Context, record domain.ProgressRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, record)
	return nil
}

func (f *fakeProgress) ListProgress(_ context.Context, viewerID string) ([]domain.ProgressRecord, error) {
	return f.writes(), nil
}

func (f *fakeProgress) writes() []domain.ProgressRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ProgressRecord, len(f.stored))
	copy(out, f.stored)
	return out
}

type fakeResults struct {
	mu     sync.Mutex
	err    error
	stored []domain.QuizResultRecord
}

func (f *fakeResults) InsertQuizResult(_ context.Context, record domain.QuizResultRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, record)
	return nil
}

func (f *fakeResults) ListQuizResults(_ context.Context, _ string) ([]domain.QuizResultRecord, error) {
	return f.records(), nil
}

func (f *fakeResults) records() []domain.QuizResultRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.QuizResultRecord, len(f.stored))
	copy(out, f.stored)
	return out
}
