package batch

import (
	"errors"
	"fmt"

	"github.com/matsen/docqa/internal/sample"
)

// Errors returned while building or moving batches.
var (
	// ErrEmptyBatch indicates that no samples or sequences were supplied.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrDegenerateSample indicates a sample whose word sequence is empty.
	ErrDegenerateSample = errors.New("degenerate sample")

	// ErrMisalignedEncoding indicates parallel per-token fields of different lengths.
	ErrMisalignedEncoding = errors.New("misaligned encoding")

	// ErrTransfer indicates a tensor could not be placed on the target device.
	ErrTransfer = errors.New("transfer failed")

	// ErrNotPermutation indicates index maps that are not mutually inverse permutations.
	ErrNotPermutation = errors.New("not a permutation")

	// ErrNegativeCap indicates a negative length cap.
	ErrNegativeCap = errors.New("length cap must be non-negative")
)

// DegenerateSampleError reports a sample with an empty question or context.
type DegenerateSampleError struct {
	Index      int // Position in the batch
	QuestionID sample.QuestionID
	Field      string // question_words or context_words
}

func (e *DegenerateSampleError) Error() string {
	return fmt.Sprintf("degenerate sample %d (%s): %s is empty", e.Index, e.QuestionID, e.Field)
}

func (e *DegenerateSampleError) Unwrap() error { return ErrDegenerateSample }

// MisalignedEncodingError reports a per-token field whose length differs
// from the sample's word sequence.
type MisalignedEncodingError struct {
	Index      int
	QuestionID sample.QuestionID
	Field      string // question_chars, context_chars, span_starts or span_ends
	Words      int    // Length of the word sequence
	Got        int    // Length of Field
}

func (e *MisalignedEncodingError) Error() string {
	return fmt.Sprintf("misaligned encoding in sample %d (%s): %s has %d entries, words have %d",
		e.Index, e.QuestionID, e.Field, e.Got, e.Words)
}

func (e *MisalignedEncodingError) Unwrap() error { return ErrMisalignedEncoding }

// TransferError reports the batch field that failed to move to a device.
type TransferError struct {
	Field  string
	Device string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transferring %s to %s: %v", e.Field, e.Device, e.Err)
}

// Unwrap exposes both ErrTransfer and the device's error to errors.Is.
func (e *TransferError) Unwrap() []error { return []error{ErrTransfer, e.Err} }

// IsDataError reports whether err comes from malformed input rather than
// from a device.
func IsDataError(err error) bool {
	return errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrDegenerateSample) ||
		errors.Is(err, ErrMisalignedEncoding)
}
