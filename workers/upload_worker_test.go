package workers_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/photopipeline/locks"
	"github.com/camden-git/photopipeline/logger"
	"github.com/camden-git/photopipeline/models"
	"github.com/camden-git/photopipeline/workers"
)

// scriptedHandler returns the queued errors in order, then nil
type scriptedHandler struct {
	mu       sync.Mutex
	errs     []error
	calls    int
	failed   []error
	deadline bool
}

func (h *scriptedHandler) Handle(ctx context.Context, job workers.UploadJob) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	_, h.deadline = ctx.Deadline()
	if len(h.errs) == 0 {
		return nil
	}
	err := h.errs[0]
	h.errs = h.errs[1:]
	return err
}

func (h *scriptedHandler) Failed(_ context.Context, _ workers.UploadJob, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, err)
}

func newRunner(handler workers.JobHandler, locker locks.Locker, queueSize int) *workers.UploadRunner {
	runner := workers.NewUploadRunner(handler, locker, queueSize, logger.Nop())
	runner.RetryDelay = 0
	return runner
}

var testJob = workers.UploadJob{PhotoID: 1, TempPath: "/tmp/upload-1.jpg", OriginalFilename: "a.jpg"}

func TestProcessRetriesTransientErrors(t *testing.T) {
	handler := &scriptedHandler{errs: []error{errors.New("db busy"), errors.New("db busy")}}
	runner := newRunner(handler, nil, 1)

	require.NoError(t, runner.Process(context.Background(), testJob))
	assert.Equal(t, 3, handler.calls)
	assert.Empty(t, handler.failed)
	assert.True(t, handler.deadline, "each attempt runs with a timeout")
}

func TestProcessGivesUpAfterMaxTries(t *testing.T) {
	boom := errors.New("boom")
	handler := &scriptedHandler{errs: []error{boom, boom, boom, boom}}
	runner := newRunner(handler, nil, 1)

	err := runner.Process(context.Background(), testJob)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, workers.MaxTries, handler.calls)
	require.Len(t, handler.failed, 1)
	assert.ErrorIs(t, handler.failed[0], boom)
}

func TestProcessStopsOnPermanentError(t *testing.T) {
	handler := &scriptedHandler{errs: []error{&workers.PermanentError{Err: errors.New("bad job")}}}
	runner := newRunner(handler, nil, 1)

	require.Error(t, runner.Process(context.Background(), testJob))
	assert.Equal(t, 1, handler.calls)
	assert.Len(t, handler.failed, 1)
}

func TestProcessReportsFailureBeforeMissingSource(t *testing.T) {
	decode := errors.New("failed to decode image")
	missing := &workers.PermanentError{Err: workers.ErrSourceMissing}
	handler := &scriptedHandler{errs: []error{decode, missing}}
	runner := newRunner(handler, nil, 1)

	err := runner.Process(context.Background(), testJob)
	assert.ErrorIs(t, err, decode)
	assert.Equal(t, 2, handler.calls)
	require.Len(t, handler.failed, 1)
	assert.ErrorIs(t, handler.failed[0], decode)
}

func TestProcessRecoversPanics(t *testing.T) {
	runner := newRunner(panicHandler{}, nil, 1)
	err := runner.Process(context.Background(), testJob)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

// stuckHandler ignores its context until released
type stuckHandler struct {
	release chan struct{}
	calls   int
	failed  []error
	mu      sync.Mutex
}

func (h *stuckHandler) Handle(context.Context, workers.UploadJob) error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	<-h.release
	return nil
}

func (h *stuckHandler) Failed(_ context.Context, _ workers.UploadJob, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failed = append(h.failed, err)
}

func TestProcessAbandonsAttemptPastDeadline(t *testing.T) {
	handler := &stuckHandler{release: make(chan struct{})}
	defer close(handler.release)
	runner := newRunner(handler, nil, 1)
	runner.AttemptTimeout = 50 * time.Millisecond

	start := time.Now()
	err := runner.Process(context.Background(), testJob)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, workers.ErrAttemptAbandoned)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, 1, handler.calls, "an abandoned attempt is not retried")
	require.Len(t, handler.failed, 1)
	assert.ErrorIs(t, handler.failed[0], workers.ErrAttemptAbandoned)
}

// deadlineHandler returns as soon as its attempt context expires
type deadlineHandler struct {
	scriptedHandler
}

func (h *deadlineHandler) Handle(ctx context.Context, job workers.UploadJob) error {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func TestProcessRetriesAttemptThatHonorsDeadline(t *testing.T) {
	handler := &deadlineHandler{}
	runner := newRunner(handler, nil, 1)
	runner.AttemptTimeout = 20 * time.Millisecond

	err := runner.Process(context.Background(), testJob)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, workers.ErrAttemptAbandoned)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, workers.MaxTries, handler.calls)
	require.Len(t, handler.failed, 1)
}

type panicHandler struct{}

func (panicHandler) Handle(context.Context, workers.UploadJob) error { panic("nil image") }

func (panicHandler) Failed(context.Context, workers.UploadJob, error) {}

func TestDispatchRejectsDuplicates(t *testing.T) {
	locker := locks.NewMemoryLocker()
	runner := newRunner(&scriptedHandler{}, locker, 4)
	ctx := context.Background()

	require.NoError(t, runner.Dispatch(ctx, testJob))
	assert.ErrorIs(t, runner.Dispatch(ctx, testJob), workers.ErrAlreadyQueued)

	// a second process sharing the lock backend is refused as well
	other := newRunner(&scriptedHandler{}, locker, 4)
	assert.ErrorIs(t, other.Dispatch(ctx, testJob), workers.ErrAlreadyQueued)

	second := testJob
	second.PhotoID = 2
	assert.NoError(t, runner.Dispatch(ctx, second))

	assert.Error(t, runner.Dispatch(ctx, workers.UploadJob{PhotoID: 3}))
}

func TestDispatchQueueFull(t *testing.T) {
	runner := newRunner(&scriptedHandler{}, nil, 1)
	ctx := context.Background()

	require.NoError(t, runner.Dispatch(ctx, testJob))
	second := testJob
	second.PhotoID = 2
	assert.ErrorIs(t, runner.Dispatch(ctx, second), workers.ErrQueueFull)

	// the rejected job left no lock behind
	runner.Mutex.Lock()
	assert.False(t, runner.Pending[2])
	runner.Mutex.Unlock()
}

func TestRunnerProcessesDispatchedUploads(t *testing.T) {
	p := newPipeline(t, jpgSettings(), nil)
	p.runner.Start(2)

	jobs := []workers.UploadJob{
		p.uploadJPEG(t, "a.jpg", 160, 120),
		p.uploadJPEG(t, "b.jpg", 120, 160),
		p.upload(t, "c.jpg", nil),
	}
	for _, job := range jobs {
		require.NoError(t, p.runner.Dispatch(context.Background(), job))
	}

	terminal := func() bool {
		for _, job := range jobs {
			photo, err := p.repo.GetByID(context.Background(), job.PhotoID)
			if err != nil || !photo.IsTerminal() {
				return false
			}
		}
		return true
	}
	require.Eventually(t, terminal, 30*time.Second, 20*time.Millisecond)

	// the lock and pending entry go away once the job is done
	require.Eventually(t, func() bool {
		p.runner.Mutex.Lock()
		defer p.runner.Mutex.Unlock()
		return len(p.runner.Pending) == 0
	}, 5*time.Second, 10*time.Millisecond)
	p.runner.Stop()

	assert.Equal(t, models.StatusDraft, p.photo(t, jobs[0].PhotoID).Status)
	assert.Equal(t, models.StatusDraft, p.photo(t, jobs[1].PhotoID).Status)
	assert.Equal(t, models.StatusFailed, p.photo(t, jobs[2].PhotoID).Status)
	for _, job := range jobs {
		assert.NoFileExists(t, job.TempPath)
	}
}
