package spanencoder

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLimit is returned for a negative limit.
	ErrInvalidLimit = errors.New("invalid encoder limit")
	// ErrNilResource is returned when a batch is started without a resource.
	ErrNilResource = errors.New("resource must not be nil")
	// ErrBatchInProgress is returned by Begin when the previous batch has not ended.
	ErrBatchInProgress = errors.New("batch already in progress")
	// ErrNoBatch is returned by Encode when no batch has begun.
	ErrNoBatch = errors.New("no batch in progress")
)

// SizeMismatchError reports that the bytes written for a message differ from
// its precomputed size. Every length prefix around the message is wrong once
// this happens, so the encoder panics with it instead of returning it.
type SizeMismatchError struct {
	Message   string
	Predicted int
	Written   int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("encoded %s is %d bytes, predicted %d", e.Message, e.Written, e.Predicted)
}
