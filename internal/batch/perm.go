package batch

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/matsen/docqa/internal/tensor"
)

// Permutation relates original sample order to length-sorted order.
//
//	Sorted[i]   = original index of sorted row i    (original[Sorted] == sorted)
//	Original[j] = sorted row holding original item j (sorted[Original] == original)
type Permutation struct {
	Sorted   []int `json:"sorted"`
	Original []int `json:"original"`
}

// Identity returns the permutation of n items that changes nothing.
func Identity(n int) Permutation {
	p := Permutation{Sorted: make([]int, n), Original: make([]int, n)}
	for i := range n {
		p.Sorted[i] = i
		p.Original[i] = i
	}
	return p
}

// NewPermutation derives the inverse of sorted by sorting its positions.
func NewPermutation(sorted []int) (Permutation, error) {
	positions := make([]int, len(sorted))
	for i := range positions {
		positions[i] = i
	}
	sort.Slice(positions, func(a, b int) bool { return sorted[positions[a]] < sorted[positions[b]] })

	p := Permutation{Sorted: append([]int(nil), sorted...), Original: positions}
	if err := p.Validate(); err != nil {
		return Permutation{}, err
	}
	return p, nil
}

// Len returns the number of items.
func (p Permutation) Len() int {
	return len(p.Sorted)
}

// Validate checks that Sorted and Original are permutations of each other's inverse.
func (p Permutation) Validate() error {
	n := len(p.Sorted)
	if len(p.Original) != n {
		return fmt.Errorf("%w: %d sorted entries, %d original entries", ErrNotPermutation, n, len(p.Original))
	}
	for i, j := range p.Sorted {
		if j < 0 || j >= n {
			return fmt.Errorf("%w: sorted[%d] = %d out of range", ErrNotPermutation, i, j)
		}
		if p.Original[j] != i {
			return fmt.Errorf("%w: original[sorted[%d]] = %d", ErrNotPermutation, i, p.Original[j])
		}
	}
	return nil
}

// ToSorted reorders original-order rows into length-sorted order.
func (p Permutation) ToSorted(t *tensor.Tensor) (*tensor.Tensor, error) {
	if err := p.checkRows(t); err != nil {
		return nil, err
	}
	return t.Gather(p.Sorted)
}

// ToOriginal reorders length-sorted rows back into original order.
func (p Permutation) ToOriginal(t *tensor.Tensor) (*tensor.Tensor, error) {
	if err := p.checkRows(t); err != nil {
		return nil, err
	}
	return t.Gather(p.Original)
}

func (p Permutation) checkRows(t *tensor.Tensor) error {
	if t.Rank() == 0 || t.Dim(0) != p.Len() {
		return fmt.Errorf("tensor shape %v does not match permutation of %d", t.Shape(), p.Len())
	}
	return nil
}

// sortedRows applies the permutation to a plain slice of rows.
func sortedRows[T any](p Permutation, rows []T) []T {
	out := make([]T, len(rows))
	for i, j := range p.Sorted {
		out[i] = rows[j]
	}
	return out
}

// String renders the two maps for debugging.
func (p Permutation) String() string {
	b, _ := json.Marshal(p)
	return string(b)
}
