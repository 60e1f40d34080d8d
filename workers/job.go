package workers

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSourceMissing means the temp upload is gone, usually because an
	// earlier attempt already reached a terminal state and cleaned it up
	ErrSourceMissing    = errors.New("temporary upload file is missing")
	ErrAlreadyQueued    = errors.New("an upload job for this photo is already queued or running")
	ErrQueueFull        = errors.New("upload job queue is full")
	// ErrAttemptAbandoned means an attempt overran its deadline without
	// returning
	ErrAttemptAbandoned = errors.New("upload attempt abandoned")
)

// UploadJob is one unit of work: turn the temp upload of a photo into its
// derived asset set
type UploadJob struct {
	PhotoID          uint   `json:"photo_id"`
	TempPath         string `json:"temp_path"`
	OriginalFilename string `json:"original_filename"`
}

func (j UploadJob) Validate() error {
	if j.PhotoID == 0 {
		return fmt.Errorf("upload job has no photo id")
	}
	if j.TempPath == "" {
		return fmt.Errorf("upload job for photo %d has no temp path", j.PhotoID)
	}
	return nil
}

// Dispatcher hands a job to whatever runs it: the in-process runner or a
// message queue
type Dispatcher interface {
	Dispatch(ctx context.Context, job UploadJob) error
}

// JobHandler runs one attempt of a job and handles final failure after the
// last attempt
type JobHandler interface {
	Handle(ctx context.Context, job UploadJob) error
	Failed(ctx context.Context, job UploadJob, err error)
}

// PermanentError marks a failure that another attempt cannot fix
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

func permanent(err error) error {
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
