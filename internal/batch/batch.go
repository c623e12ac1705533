// Package batch turns encoded question/context samples into padded,
// length-sorted tensors with reversible index maps.
//
// Word tensors, char grids, masks and span labels are stored in original
// sample order. Lengths are stored in descending (sorted) order. For each
// side, SortedIdx and OrigIdx relate the two orders:
//
//	Words[SortedIdx] == length-sorted words
//	length-sorted words[OrigIdx] == Words
package batch

import (
	"encoding/json"

	"github.com/matsen/docqa/internal/device"
	"github.com/matsen/docqa/internal/sample"
	"github.com/matsen/docqa/internal/tensor"
)

// Side holds the tensors of one text field (question or context).
type Side struct {
	Words     *tensor.Tensor `json:"words"`      // (N, L), original order
	Chars     *tensor.Tensor `json:"chars"`      // (N, L, C), original order
	Lengths   *tensor.Tensor `json:"lengths"`    // (N), descending
	SortedIdx *tensor.Tensor `json:"sorted_idx"` // (N), sorted row -> original index
	OrigIdx   *tensor.Tensor `json:"orig_idx"`   // (N), original index -> sorted row
	Mask      *tensor.Tensor `json:"mask"`       // (N, L), original order
}

// Batch is the collated form of a list of samples. It is immutable after
// construction except for To, which relocates its tensors.
type Batch struct {
	questionIDs []sample.QuestionID
	question    Side
	context     Side
	spanStarts  *tensor.Tensor
	spanEnds    *tensor.Tensor
	device      string
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int {
	return len(b.questionIDs)
}

// QuestionIDs returns the question ids in original order.
func (b *Batch) QuestionIDs() []sample.QuestionID {
	return append([]sample.QuestionID(nil), b.questionIDs...)
}

// Question returns a copy of the question tensors.
func (b *Batch) Question() Side { return b.question.clone() }

// Context returns a copy of the context tensors.
func (b *Batch) Context() Side { return b.context.clone() }

// SpanStarts returns a copy of the (N, context L) answer start labels in original order.
func (b *Batch) SpanStarts() *tensor.Tensor { return b.spanStarts.Clone() }

// SpanEnds returns a copy of the (N, context L) answer end labels in original order.
func (b *Batch) SpanEnds() *tensor.Tensor { return b.spanEnds.Clone() }

// Device returns where the batch's tensors currently live.
func (b *Batch) Device() string { return b.device }

func (s Side) clone() Side {
	return Side{
		Words:     s.Words.Clone(),
		Chars:     s.Chars.Clone(),
		Lengths:   s.Lengths.Clone(),
		SortedIdx: s.SortedIdx.Clone(),
		OrigIdx:   s.OrigIdx.Clone(),
		Mask:      s.Mask.Clone(),
	}
}

type field struct {
	name string
	ptr  **tensor.Tensor
}

func (s *Side) fields(prefix string) []field {
	return []field{
		{prefix + "_words", &s.Words},
		{prefix + "_chars", &s.Chars},
		{prefix + "_lengths", &s.Lengths},
		{prefix + "_sorted_idx", &s.SortedIdx},
		{prefix + "_orig_idx", &s.OrigIdx},
		{prefix + "_mask", &s.Mask},
	}
}

func (b *Batch) fields() []field {
	fs := b.question.fields("question")
	fs = append(fs, b.context.fields("context")...)
	return append(fs,
		field{"span_starts", &b.spanStarts},
		field{"span_ends", &b.spanEnds},
	)
}

// releaser is implemented by devices that account for placed bytes.
type releaser interface {
	Release(bytes int64)
}

// To places every tensor on dev. Question ids are untouched. If any field
// fails, the batch is left unchanged, bytes already reserved on a device
// that implements Release are returned, and a *TransferError names the field.
// Placement may block inside the device; there is no cancellation.
func (b *Batch) To(dev device.Device) error {
	fs := b.fields()
	staged := make([]*tensor.Tensor, len(fs))
	for i, f := range fs {
		moved, err := dev.Place(*f.ptr)
		if err != nil {
			if r, ok := dev.(releaser); ok {
				for _, s := range staged[:i] {
					r.Release(s.SizeBytes())
				}
			}
			return &TransferError{Field: f.name, Device: dev.Name(), Err: err}
		}
		staged[i] = moved
	}
	for i, f := range fs {
		*f.ptr = staged[i]
	}
	b.device = dev.Name()
	return nil
}

// SizeBytes returns the total tensor storage of the batch.
func (b *Batch) SizeBytes() int64 {
	var n int64
	for _, f := range b.fields() {
		n += (*f.ptr).SizeBytes()
	}
	return n
}

type batchJSON struct {
	QuestionIDs []sample.QuestionID `json:"question_ids"`
	Question    Side                `json:"question"`
	Context     Side                `json:"context"`
	SpanStarts  *tensor.Tensor      `json:"span_starts"`
	SpanEnds    *tensor.Tensor      `json:"span_ends"`
	Device      string              `json:"device"`
}

// MarshalJSON encodes the full batch.
func (b *Batch) MarshalJSON() ([]byte, error) {
	return json.Marshal(batchJSON{
		QuestionIDs: b.questionIDs,
		Question:    b.question,
		Context:     b.context,
		SpanStarts:  b.spanStarts,
		SpanEnds:    b.spanEnds,
		Device:      b.device,
	})
}
