package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/camden-git/photopipeline/locks"
	"github.com/camden-git/photopipeline/logger"
	"github.com/camden-git/photopipeline/repository"
)

const (
	// MaxTries is the number of attempts an upload job gets
	MaxTries = 3
	// AttemptTimeout bounds the wall clock time of a single attempt
	AttemptTimeout = 300 * time.Second

	DefaultRetryDelay = 5 * time.Second

	// maxAbandonGrace caps how long a timed out attempt may take to return
	maxAbandonGrace = 10 * time.Second

	// lockTTL outlives every attempt plus the delays between them
	lockTTL = MaxTries*(AttemptTimeout+maxAbandonGrace) + MaxTries*DefaultRetryDelay + time.Minute
)

// UploadRunner is a pool of workers pulling upload jobs from a buffered
// queue. It retries failed attempts and calls the handler's Failed hook once
// attempts run out.
type UploadRunner struct {
	JobQueue   chan UploadJob
	Handler    JobHandler
	Locker     locks.Locker
	RetryDelay time.Duration
	// AttemptTimeout bounds one attempt; defaults to the package constant
	AttemptTimeout time.Duration
	Wg             sync.WaitGroup
	StopChan       chan struct{}
	Pending        map[uint]bool
	Mutex          sync.Mutex

	log *logger.Logger
}

var _ Dispatcher = (*UploadRunner)(nil)

// NewUploadRunner creates a runner. Workers are not started until Start.
func NewUploadRunner(handler JobHandler, locker locks.Locker, queueSize int, log *logger.Logger) *UploadRunner {
	if queueSize <= 0 {
		queueSize = 100
	}
	if locker == nil {
		locker = locks.NewMemoryLocker()
	}
	return &UploadRunner{
		JobQueue:       make(chan UploadJob, queueSize),
		Handler:        handler,
		Locker:         locker,
		RetryDelay:     DefaultRetryDelay,
		AttemptTimeout: AttemptTimeout,
		StopChan:       make(chan struct{}),
		Pending:        make(map[uint]bool),
		log:            log.WithComponent("workers.runner"),
	}
}

// Start launches numWorkers goroutines
func (r *UploadRunner) Start(numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	r.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go r.worker(i)
	}
	r.log.Info("started upload workers", "workers", numWorkers, "queue_size", cap(r.JobQueue))
}

func (r *UploadRunner) worker(id int) {
	defer r.Wg.Done()
	for {
		select {
		case job := <-r.JobQueue:
			r.log.Debug("received job", "worker", id, "photo_id", job.PhotoID)
			// a stop signal lets the running job finish all of its attempts
			if err := r.Process(context.Background(), job); err != nil {
				r.log.Warn("job finished with error", "worker", id, "photo_id", job.PhotoID, "error", err)
			}
			r.release(job)
		case <-r.StopChan:
			r.log.Debug("upload worker stopping", "worker", id)
			return
		}
	}
}

// Dispatch queues a job unless one for the same photo is already queued or
// running here or, through the Locker, in another process
func (r *UploadRunner) Dispatch(ctx context.Context, job UploadJob) error {
	if err := job.Validate(); err != nil {
		return err
	}

	r.Mutex.Lock()
	if r.Pending[job.PhotoID] {
		r.Mutex.Unlock()
		return ErrAlreadyQueued
	}
	r.Pending[job.PhotoID] = true
	r.Mutex.Unlock()

	ok, err := r.Locker.Acquire(ctx, locks.PhotoKey(job.PhotoID), lockTTL)
	if err != nil || !ok {
		r.Mutex.Lock()
		delete(r.Pending, job.PhotoID)
		r.Mutex.Unlock()
		if err != nil {
			return fmt.Errorf("failed to lock photo %d: %w", job.PhotoID, err)
		}
		return ErrAlreadyQueued
	}

	select {
	case r.JobQueue <- job:
		r.log.Info("queued upload job", "photo_id", job.PhotoID, "file", job.OriginalFilename)
		return nil
	default:
		r.log.Warn("upload job queue full", "photo_id", job.PhotoID)
		r.release(job)
		return ErrQueueFull
	}
}

func (r *UploadRunner) release(job UploadJob) {
	if err := r.Locker.Release(context.Background(), locks.PhotoKey(job.PhotoID)); err != nil {
		r.log.Warn("could not release photo lock", "photo_id", job.PhotoID, "error", err)
	}
	r.Mutex.Lock()
	delete(r.Pending, job.PhotoID)
	r.Mutex.Unlock()
}

// Process runs a job to completion in the calling goroutine: up to MaxTries
// attempts, each bounded by AttemptTimeout. It returns nil on success and
// the error that caused the final failure otherwise.
func (r *UploadRunner) Process(ctx context.Context, job UploadJob) error {
	// a retry after cleanup only finds the source missing; report the
	// failure that led there instead
	var reportErr error
	for attempt := 1; attempt <= MaxTries; attempt++ {
		err := r.attempt(ctx, job)
		if err == nil {
			return nil
		}
		if reportErr == nil || !errors.Is(err, ErrSourceMissing) {
			reportErr = err
		}

		if errors.Is(err, repository.ErrNotClaimable) {
			r.log.Info("photo no longer awaiting processing, dropping job", "photo_id", job.PhotoID)
			return nil
		}
		if IsPermanent(err) || errors.Is(err, ErrAttemptAbandoned) || attempt == MaxTries || ctx.Err() != nil {
			break
		}

		r.log.Warn("upload attempt failed, retrying", "photo_id", job.PhotoID, "attempt", attempt, "error", err)
		if !r.sleep(ctx) {
			break
		}
	}

	r.Handler.Failed(ctx, job, reportErr)
	return reportErr
}

// attempt runs Handle with a deadline. Handle is expected to honor ctx, but
// decoding and hashing cannot be interrupted, so once the deadline and a
// short grace period pass the runner stops waiting and reports
// ErrAttemptAbandoned. The stray attempt
// finishes in the background with a cancelled context, which makes its
// remaining writes fail. It is not retried since it may still hold the temp
// file.
func (r *UploadRunner) attempt(ctx context.Context, job UploadJob) error {
	timeout := r.AttemptTimeout
	if timeout <= 0 {
		timeout = AttemptTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("upload job panicked: %v", rec)
			}
		}()
		done <- r.Handler.Handle(ctx, job)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	// a stage that honors ctx returns promptly and keeps its retry
	grace := min(timeout/10, maxAbandonGrace)
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case err := <-done:
		return err
	case <-t.C:
		r.log.Error("upload attempt did not stop after its deadline, abandoning it",
			"photo_id", job.PhotoID, "timeout", timeout)
		return fmt.Errorf("%w after %s: %w", ErrAttemptAbandoned, timeout, ctx.Err())
	}
}

func (r *UploadRunner) sleep(ctx context.Context) bool {
	if r.RetryDelay <= 0 {
		return true
	}
	t := time.NewTimer(r.RetryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop waits for running jobs to finish. Jobs still queued are dropped.
func (r *UploadRunner) Stop() {
	r.log.Info("stopping upload workers")
	close(r.StopChan)
	r.Wg.Wait()
	r.log.Info("all upload workers stopped")
}
