package batch

import (
	"fmt"
	"sort"

	"github.com/matsen/docqa/internal/tensor"
)

// Padded is a batch of sequences zero-padded to a common width and stored
// in length-sorted order.
type Padded struct {
	Data    *tensor.Tensor // (N, L), sorted order
	Lengths []int64        // Per sorted row; descending when produced by PadAndSort
	Perm    Permutation
}

// Width returns L, the padded sequence length.
func (p *Padded) Width() int {
	return p.Data.Dim(1)
}

// Original returns Data re-expanded to original order.
func (p *Padded) Original() (*tensor.Tensor, error) {
	return p.Perm.ToOriginal(p.Data)
}

// truncate caps every sequence at maxLen elements; 0 means no cap.
func truncate(seqs [][]int64, maxLen int) ([][]int64, error) {
	if maxLen < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeCap, maxLen)
	}
	if maxLen == 0 {
		return seqs, nil
	}
	out := make([][]int64, len(seqs))
	for i, s := range seqs {
		if len(s) > maxLen {
			s = s[:maxLen]
		}
		out[i] = s
	}
	return out, nil
}

// PadAndSort truncates each sequence to maxLen (0 = unlimited), sorts them by
// descending length with ties kept in original order, and zero-pads them to
// the longest remaining length.
func PadAndSort(seqs [][]int64, maxLen int) (*Padded, error) {
	if len(seqs) == 0 {
		return nil, ErrEmptyBatch
	}
	seqs, err := truncate(seqs, maxLen)
	if err != nil {
		return nil, err
	}

	order := make([]int, len(seqs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return len(seqs[order[a]]) > len(seqs[order[b]]) })

	perm, err := NewPermutation(order)
	if err != nil {
		return nil, err
	}
	return pad(seqs, perm)
}

// PadWithPermutation truncates and pads seqs like PadAndSort but lays the rows
// out using an existing permutation instead of sorting them by their own
// lengths. Span label vectors use this to stay aligned with their context.
func PadWithPermutation(seqs [][]int64, maxLen int, perm Permutation) (*Padded, error) {
	if len(seqs) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(seqs) != perm.Len() {
		return nil, fmt.Errorf("%d sequences for a permutation of %d", len(seqs), perm.Len())
	}
	if err := perm.Validate(); err != nil {
		return nil, err
	}
	seqs, err := truncate(seqs, maxLen)
	if err != nil {
		return nil, err
	}
	return pad(seqs, perm)
}

func pad(seqs [][]int64, perm Permutation) (*Padded, error) {
	rows := sortedRows(perm, seqs)
	lengths := make([]int64, len(rows))
	width := 0
	for i, r := range rows {
		lengths[i] = int64(len(r))
		width = max(width, len(r))
	}

	data, err := tensor.FromRows(rows, width)
	if err != nil {
		return nil, fmt.Errorf("padding sequences: %w", err)
	}
	return &Padded{Data: data, Lengths: lengths, Perm: perm}, nil
}
