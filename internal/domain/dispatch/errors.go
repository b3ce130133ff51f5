package dispatch

import "github.com/cockroachdb/errors"

var (
	ErrInvalidJob       = errors.New("invalid dispatch job")
	ErrJobFinished      = errors.New("dispatch job already finished")
	ErrProgressOverflow = errors.New("processed files exceed expected total")
	ErrFolderNotFound   = errors.New("folder not found")
	ErrPublishFailure   = errors.New("publish failure")
)
