package sample

import (
	"errors"
	"fmt"
	"sort"
)

// Reserved ids shared by word and character vocabularies.
const (
	PadID     int64 = 0
	UnknownID int64 = 1
)

// ErrAnswerOutOfRange is returned when an answer does not fall inside the context tokens.
var ErrAnswerOutOfRange = errors.New("answer span out of range")

// TokenSpan holds a token's character offsets in its source text, end exclusive.
type TokenSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// EncodedAnswer is an answer expressed as inclusive context token indices.
type EncodedAnswer struct {
	SpanStart int `json:"span_start"`
	SpanEnd   int `json:"span_end"`
}

// EncodedText is a token sequence mapped to word ids and per-word char ids.
type EncodedText struct {
	Words []int64
	Chars [][]int64
}

// LocateAnswer maps an answer's character range [charStart, charEnd) onto
// context tokens. The first token is the last one starting at or before
// charStart; the last token is the first one ending at or after charEnd.
func LocateAnswer(tokens []TokenSpan, charStart, charEnd int) (EncodedAnswer, error) {
	n := len(tokens)
	if n == 0 {
		return EncodedAnswer{}, fmt.Errorf("%w: context has no tokens", ErrAnswerOutOfRange)
	}
	start := sort.Search(n, func(i int) bool { return tokens[i].Start > charStart }) - 1
	end := sort.Search(n, func(i int) bool { return tokens[i].End >= charEnd })
	if start < 0 || end >= n || end < start {
		return EncodedAnswer{}, fmt.Errorf("%w: chars [%d, %d) over %d tokens", ErrAnswerOutOfRange, charStart, charEnd, n)
	}
	return EncodedAnswer{SpanStart: start, SpanEnd: end}, nil
}

// Vocabulary maps words or characters to ids. Ids 0 and 1 are reserved for
// padding and unknown entries.
type Vocabulary struct {
	ids map[string]int64
}

// NewVocabulary assigns ids to entries in order, starting after the reserved ids.
// Duplicates keep their first id.
func NewVocabulary(entries []string) *Vocabulary {
	v := &Vocabulary{ids: make(map[string]int64, len(entries))}
	next := UnknownID + 1
	for _, e := range entries {
		if _, ok := v.ids[e]; ok {
			continue
		}
		v.ids[e] = next
		next++
	}
	return v
}

// Size returns the number of ids including the reserved ones.
func (v *Vocabulary) Size() int {
	return len(v.ids) + 2
}

// Encode returns the id of entry, or UnknownID.
func (v *Vocabulary) Encode(entry string) int64 {
	if id, ok := v.ids[entry]; ok {
		return id
	}
	return UnknownID
}

// EncodeTokens maps each token to its word id and each of its characters to a char id.
func EncodeTokens(tokens []string, words, chars *Vocabulary) EncodedText {
	out := EncodedText{
		Words: make([]int64, len(tokens)),
		Chars: make([][]int64, len(tokens)),
	}
	for i, tok := range tokens {
		out.Words[i] = words.Encode(tok)
		var ids []int64
		for _, r := range tok {
			ids = append(ids, chars.Encode(string(r)))
		}
		out.Chars[i] = ids
	}
	return out
}
