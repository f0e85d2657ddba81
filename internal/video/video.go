// Package video provides frame sources for lane monitors. A source
// hands out one encoded frame at a time; when the underlying stream is
// exhausted it reports ErrEndOfStream, which monitors treat as "rewind
// and continue", never as termination.
package video

import "errors"

// ErrEndOfStream is returned by Next when the stream is exhausted.
var ErrEndOfStream = errors.New("video: end of stream")

// Source supplies encoded frames for one lane.
type Source interface {
	// Next returns the next frame. It returns ErrEndOfStream when the
	// stream is exhausted and other errors for transient read or
	// decode failures.
	Next() ([]byte, error)

	// Close releases the underlying resource. Safe to call more than
	// once.
	Close() error
}
