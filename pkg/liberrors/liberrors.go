// Package liberrors contains errors returned by the library.
package liberrors

import (
	"fmt"
)

// ErrInvalidFragmentSize is returned when the maximum fragment size
// leaves no room for payload.
type ErrInvalidFragmentSize struct {
	Size int
}

// Error implements the error interface.
func (e ErrInvalidFragmentSize) Error() string {
	return fmt.Sprintf("invalid maximum fragment size (%d), it must be greater than 2", e.Size)
}

// ErrEmptyNALU is returned when a NALU without header is passed to the encoder.
type ErrEmptyNALU struct{}

// Error implements the error interface.
func (e ErrEmptyNALU) Error() string {
	return "NALU is empty"
}

// ErrFragmentMissing is returned when a fragment of a fragmented NALU is lost.
type ErrFragmentMissing struct {
	Expected uint16
	Received uint16
}

// Error implements the error interface.
func (e ErrFragmentMissing) Error() string {
	return fmt.Sprintf("discarding NALU since a RTP packet is missing (expected sequence number %d, received %d)",
		e.Expected, e.Received)
}

// ErrSRTPKeyInvalid is returned in case of an invalid SRTP master key.
type ErrSRTPKeyInvalid struct {
	Err error
}

// Error implements the error interface.
func (e ErrSRTPKeyInvalid) Error() string {
	return fmt.Sprintf("invalid SRTP key: %v", e.Err)
}

// ErrNoNALUs is returned when a stream does not contain any NALU.
type ErrNoNALUs struct {
	Source string
}

// Error implements the error interface.
func (e ErrNoNALUs) Error() string {
	return fmt.Sprintf("no NALUs found in %s", e.Source)
}
