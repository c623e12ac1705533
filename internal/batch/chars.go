package batch

import (
	"fmt"

	"github.com/matsen/docqa/internal/tensor"
)

// CharGrid lays out per-word character ids as an (N, maxWords, maxChars)
// tensor in original sample order. maxChars is the longest word anywhere in
// the batch, including words past the cap. Words at index >= wordCap are
// dropped when wordCap > 0. maxWords must be the width of the padded word
// tensor for the same field so word positions line up.
func CharGrid(words [][][]int64, maxWords, wordCap int) (*tensor.Tensor, error) {
	if len(words) == 0 {
		return nil, ErrEmptyBatch
	}
	if wordCap < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeCap, wordCap)
	}

	maxChars := 0
	for _, sampleWords := range words {
		for _, w := range sampleWords {
			maxChars = max(maxChars, len(w))
		}
	}

	data := make([]int64, len(words)*maxWords*maxChars)
	for i, sampleWords := range words {
		for w, chars := range sampleWords {
			if wordCap > 0 && w >= wordCap {
				break
			}
			if w >= maxWords {
				return nil, fmt.Errorf("sample %d has word %d beyond padded width %d", i, w, maxWords)
			}
			copy(data[(i*maxWords+w)*maxChars:], chars)
		}
	}
	return tensor.FromData(data, len(words), maxWords, maxChars)
}
