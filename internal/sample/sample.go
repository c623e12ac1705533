// Package sample defines encoded question/context samples, the unit the
// batcher consumes.
package sample

import (
	"errors"
	"fmt"
)

// QuestionID identifies a question across the dataset and the evaluator.
type QuestionID string

// EncodedSample is one question + context + answer unit after id mapping.
// SpanStarts and SpanEnds have the context's length and hold 1 at every
// token that starts (ends) a valid answer.
type EncodedSample struct {
	QuestionID    QuestionID `json:"question_id"`
	QuestionWords []int64    `json:"question_words"`
	QuestionChars [][]int64  `json:"question_chars"`
	ContextWords  []int64    `json:"context_words"`
	ContextChars  [][]int64  `json:"context_chars"`
	SpanStarts    []int64    `json:"span_starts"`
	SpanEnds      []int64    `json:"span_ends"`
}

// Validation errors.
var (
	ErrEmptyQuestionID   = errors.New("question_id is required")
	ErrSpanShape         = errors.New("span indicator length differs from context length")
	ErrSpanValue         = errors.New("span indicators must be 0 or 1")
	ErrUnbalancedAnswers = errors.New("span_starts and span_ends disagree on whether an answer exists")
)

// HasAnswer reports whether any span start is set.
func (s *EncodedSample) HasAnswer() bool {
	for _, v := range s.SpanStarts {
		if v != 0 {
			return true
		}
	}
	return false
}

// AnswerCount returns the number of marked span starts.
func (s *EncodedSample) AnswerCount() int {
	n := 0
	for _, v := range s.SpanStarts {
		if v != 0 {
			n++
		}
	}
	return n
}

// Validate checks the shape rules a stored sample must satisfy.
// Word/char alignment and emptiness are checked by the batcher at collation
// time so they can be reported with the field that failed.
func (s *EncodedSample) Validate() error {
	if s.QuestionID == "" {
		return ErrEmptyQuestionID
	}
	if len(s.SpanStarts) != len(s.ContextWords) {
		return fmt.Errorf("%w: span_starts has %d, context has %d", ErrSpanShape, len(s.SpanStarts), len(s.ContextWords))
	}
	if len(s.SpanEnds) != len(s.ContextWords) {
		return fmt.Errorf("%w: span_ends has %d, context has %d", ErrSpanShape, len(s.SpanEnds), len(s.ContextWords))
	}
	var starts, ends bool
	for i := range s.SpanStarts {
		if s.SpanStarts[i] != 0 && s.SpanStarts[i] != 1 {
			return fmt.Errorf("%w: span_starts[%d] = %d", ErrSpanValue, i, s.SpanStarts[i])
		}
		if s.SpanEnds[i] != 0 && s.SpanEnds[i] != 1 {
			return fmt.Errorf("%w: span_ends[%d] = %d", ErrSpanValue, i, s.SpanEnds[i])
		}
		starts = starts || s.SpanStarts[i] == 1
		ends = ends || s.SpanEnds[i] == 1
	}
	if starts != ends {
		return ErrUnbalancedAnswers
	}
	return nil
}

// NewEncodedSample builds a sample from an encoded context and an encoded
// question with its answers. The span vectors are all zero when answers is empty.
func NewEncodedSample(id QuestionID, ctx EncodedText, question EncodedText, answers []EncodedAnswer) (EncodedSample, error) {
	s := EncodedSample{
		QuestionID:    id,
		QuestionWords: question.Words,
		QuestionChars: question.Chars,
		ContextWords:  ctx.Words,
		ContextChars:  ctx.Chars,
		SpanStarts:    make([]int64, len(ctx.Words)),
		SpanEnds:      make([]int64, len(ctx.Words)),
	}
	for _, a := range answers {
		if a.SpanStart < 0 || a.SpanStart >= len(ctx.Words) || a.SpanEnd < a.SpanStart || a.SpanEnd >= len(ctx.Words) {
			return EncodedSample{}, fmt.Errorf("%w: span [%d, %d] in context of %d tokens",
				ErrAnswerOutOfRange, a.SpanStart, a.SpanEnd, len(ctx.Words))
		}
		s.SpanStarts[a.SpanStart] = 1
		s.SpanEnds[a.SpanEnd] = 1
	}
	return s, nil
}
