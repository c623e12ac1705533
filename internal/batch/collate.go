package batch

import (
	"fmt"

	"github.com/matsen/docqa/internal/sample"
	"github.com/matsen/docqa/internal/tensor"
)

// Collator builds one batch from a list of samples.
type Collator func(samples []sample.EncodedSample) (*Batch, error)

// NewCollator returns a Collator that trims questions to maxQuestion and
// contexts to maxContext tokens (0 = unlimited).
func NewCollator(maxQuestion, maxContext int) Collator {
	return func(samples []sample.EncodedSample) (*Batch, error) {
		return Collate(samples, maxQuestion, maxContext)
	}
}

// fieldLists holds the per-field sequences of a batch in original order.
type fieldLists struct {
	ids           []sample.QuestionID
	questionWords [][]int64
	questionChars [][][]int64
	contextWords  [][]int64
	contextChars  [][][]int64
	spanStarts    [][]int64
	spanEnds      [][]int64
}

func collect(samples []sample.EncodedSample) (*fieldLists, error) {
	n := len(samples)
	f := &fieldLists{
		ids:           make([]sample.QuestionID, 0, n),
		questionWords: make([][]int64, 0, n),
		questionChars: make([][][]int64, 0, n),
		contextWords:  make([][]int64, 0, n),
		contextChars:  make([][][]int64, 0, n),
		spanStarts:    make([][]int64, 0, n),
		spanEnds:      make([][]int64, 0, n),
	}
	for i := range samples {
		s := &samples[i]
		if err := checkSample(i, s); err != nil {
			return nil, err
		}
		f.ids = append(f.ids, s.QuestionID)
		f.questionWords = append(f.questionWords, s.QuestionWords)
		f.questionChars = append(f.questionChars, s.QuestionChars)
		f.contextWords = append(f.contextWords, s.ContextWords)
		f.contextChars = append(f.contextChars, s.ContextChars)
		f.spanStarts = append(f.spanStarts, s.SpanStarts)
		f.spanEnds = append(f.spanEnds, s.SpanEnds)
	}
	return f, nil
}

// checkSample rejects empty word sequences and per-token fields that do not
// line up with their words. A cap of at least 1 never empties a non-empty
// sequence, so checking before truncation covers both cases.
func checkSample(i int, s *sample.EncodedSample) error {
	if len(s.QuestionWords) == 0 {
		return &DegenerateSampleError{Index: i, QuestionID: s.QuestionID, Field: "question_words"}
	}
	if len(s.ContextWords) == 0 {
		return &DegenerateSampleError{Index: i, QuestionID: s.QuestionID, Field: "context_words"}
	}

	aligned := []struct {
		field string
		words int
		got   int
	}{
		{"question_chars", len(s.QuestionWords), len(s.QuestionChars)},
		{"context_chars", len(s.ContextWords), len(s.ContextChars)},
		{"span_starts", len(s.ContextWords), len(s.SpanStarts)},
		{"span_ends", len(s.ContextWords), len(s.SpanEnds)},
	}
	for _, a := range aligned {
		if a.words != a.got {
			return &MisalignedEncodingError{Index: i, QuestionID: s.QuestionID, Field: a.field, Words: a.words, Got: a.got}
		}
	}
	return nil
}

// Collate pads, sorts and re-expands a list of samples into a Batch.
// Questions are capped at maxQuestion tokens and contexts at maxContext
// (0 = unlimited). Span labels are laid out with the context's permutation.
func Collate(samples []sample.EncodedSample, maxQuestion, maxContext int) (*Batch, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyBatch
	}
	if maxQuestion < 0 || maxContext < 0 {
		return nil, fmt.Errorf("%w: question %d, context %d", ErrNegativeCap, maxQuestion, maxContext)
	}

	f, err := collect(samples)
	if err != nil {
		return nil, err
	}

	question, _, err := buildSide(f.questionWords, f.questionChars, maxQuestion)
	if err != nil {
		return nil, fmt.Errorf("question: %w", err)
	}
	ctxSide, ctxPerm, err := buildSide(f.contextWords, f.contextChars, maxContext)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	starts, err := alignLabels(f.spanStarts, maxContext, ctxPerm)
	if err != nil {
		return nil, fmt.Errorf("span_starts: %w", err)
	}
	ends, err := alignLabels(f.spanEnds, maxContext, ctxPerm)
	if err != nil {
		return nil, fmt.Errorf("span_ends: %w", err)
	}

	return &Batch{
		questionIDs: f.ids,
		question:    question,
		context:     ctxSide,
		spanStarts:  starts,
		spanEnds:    ends,
		device:      tensor.Host,
	}, nil
}

// buildSide pads one text field and returns its tensors with the
// permutation used to sort it.
func buildSide(words [][]int64, chars [][][]int64, maxLen int) (Side, Permutation, error) {
	padded, err := PadAndSort(words, maxLen)
	if err != nil {
		return Side{}, Permutation{}, err
	}
	side, err := sideFrom(padded, chars, maxLen)
	return side, padded.Perm, err
}

func sideFrom(padded *Padded, chars [][][]int64, maxLen int) (Side, error) {
	original, err := padded.Original()
	if err != nil {
		return Side{}, err
	}
	grid, err := CharGrid(chars, padded.Width(), maxLen)
	if err != nil {
		return Side{}, err
	}
	return Side{
		Words:     original,
		Chars:     grid,
		Lengths:   tensor.FromVector(padded.Lengths),
		SortedIdx: tensor.FromInts(padded.Perm.Sorted),
		OrigIdx:   tensor.FromInts(padded.Perm.Original),
		Mask:      Mask(original),
	}, nil
}

// alignLabels pads per-token label vectors in the context's sorted layout and
// re-expands them with the same permutation, so label k stays on context token k.
func alignLabels(labels [][]int64, maxContext int, ctxPerm Permutation) (*tensor.Tensor, error) {
	padded, err := PadWithPermutation(labels, maxContext, ctxPerm)
	if err != nil {
		return nil, err
	}
	return padded.Original()
}
