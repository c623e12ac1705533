package batch

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/matsen/docqa/internal/tensor"
)

func mustRows(t *testing.T, rows [][]int64, width int) *tensor.Tensor {
	t.Helper()
	tt, err := tensor.FromRows(rows, width)
	if err != nil {
		t.Fatalf("FromRows() error = %v", err)
	}
	return tt
}

func equalInts[T int | int64](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPadAndSort_Scenarios(t *testing.T) {
	tests := []struct {
		name         string
		seqs         [][]int64
		maxLen       int
		wantSorted   [][]int64
		wantOriginal [][]int64
		width        int
		wantLengths  []int64
		wantSortIdx  []int
		wantOrigIdx  []int
	}{
		{
			name:         "already sorted",
			seqs:         [][]int64{{5, 6, 7}, {1, 2}},
			wantSorted:   [][]int64{{5, 6, 7}, {1, 2, 0}},
			wantOriginal: [][]int64{{5, 6, 7}, {1, 2, 0}},
			width:        3,
			wantLengths:  []int64{3, 2},
			wantSortIdx:  []int{0, 1},
			wantOrigIdx:  []int{0, 1},
		},
		{
			name:         "out of length order",
			seqs:         [][]int64{{1, 2}, {5, 6, 7}},
			wantSorted:   [][]int64{{5, 6, 7}, {1, 2, 0}},
			wantOriginal: [][]int64{{1, 2, 0}, {5, 6, 7}},
			width:        3,
			wantLengths:  []int64{3, 2},
			wantSortIdx:  []int{1, 0},
			wantOrigIdx:  []int{1, 0},
		},
		{
			name:         "single sample",
			seqs:         [][]int64{{9, 9, 9}},
			wantSorted:   [][]int64{{9, 9, 9}},
			wantOriginal: [][]int64{{9, 9, 9}},
			width:        3,
			wantLengths:  []int64{3},
			wantSortIdx:  []int{0},
			wantOrigIdx:  []int{0},
		},
		{
			name:         "single sample truncated",
			seqs:         [][]int64{{1, 2, 3, 4}},
			maxLen:       2,
			wantSorted:   [][]int64{{1, 2}},
			wantOriginal: [][]int64{{1, 2}},
			width:        2,
			wantLengths:  []int64{2},
			wantSortIdx:  []int{0},
			wantOrigIdx:  []int{0},
		},
		{
			name:         "ties keep original order",
			seqs:         [][]int64{{1}, {2, 3}, {4}},
			wantSorted:   [][]int64{{2, 3}, {1, 0}, {4, 0}},
			wantOriginal: [][]int64{{1, 0}, {2, 3}, {4, 0}},
			width:        2,
			wantLengths:  []int64{2, 1, 1},
			wantSortIdx:  []int{1, 0, 2},
			wantOrigIdx:  []int{1, 0, 2},
		},
		{
			name:         "cap equalizes lengths",
			seqs:         [][]int64{{1, 2, 3, 4, 5}, {6, 7, 8}},
			maxLen:       3,
			wantSorted:   [][]int64{{1, 2, 3}, {6, 7, 8}},
			wantOriginal: [][]int64{{1, 2, 3}, {6, 7, 8}},
			width:        3,
			wantLengths:  []int64{3, 3},
			wantSortIdx:  []int{0, 1},
			wantOrigIdx:  []int{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PadAndSort(tt.seqs, tt.maxLen)
			if err != nil {
				t.Fatalf("PadAndSort() error = %v", err)
			}

			if want := mustRows(t, tt.wantSorted, tt.width); !got.Data.Equal(want) {
				t.Errorf("Data = %v, want %v", got.Data, want)
			}
			if !equalInts(got.Lengths, tt.wantLengths) {
				t.Errorf("Lengths = %v, want %v", got.Lengths, tt.wantLengths)
			}
			if !equalInts(got.Perm.Sorted, tt.wantSortIdx) {
				t.Errorf("Perm.Sorted = %v, want %v", got.Perm.Sorted, tt.wantSortIdx)
			}
			if !equalInts(got.Perm.Original, tt.wantOrigIdx) {
				t.Errorf("Perm.Original = %v, want %v", got.Perm.Original, tt.wantOrigIdx)
			}

			original, err := got.Original()
			if err != nil {
				t.Fatalf("Original() error = %v", err)
			}
			if want := mustRows(t, tt.wantOriginal, tt.width); !original.Equal(want) {
				t.Errorf("Original() = %v, want %v", original, want)
			}
		})
	}
}

func TestPadAndSort_Empty(t *testing.T) {
	if _, err := PadAndSort(nil, 0); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("PadAndSort(nil) error = %v, want ErrEmptyBatch", err)
	}
}

func TestPadAndSort_NegativeCap(t *testing.T) {
	if _, err := PadAndSort([][]int64{{1}}, -1); !errors.Is(err, ErrNegativeCap) {
		t.Errorf("PadAndSort() error = %v, want ErrNegativeCap", err)
	}
}

func TestPadAndSort_DoesNotModifyInput(t *testing.T) {
	seqs := [][]int64{{1, 2, 3}, {4}}
	if _, err := PadAndSort(seqs, 2); err != nil {
		t.Fatalf("PadAndSort() error = %v", err)
	}
	if len(seqs[0]) != 3 || seqs[0][2] != 3 {
		t.Errorf("input modified: %v", seqs)
	}
}

// randomSeqs returns n non-empty sequences of non-zero ids.
func randomSeqs(r *rand.Rand, n, maxLen int) [][]int64 {
	seqs := make([][]int64, n)
	for i := range seqs {
		seq := make([]int64, 1+r.Intn(maxLen))
		for j := range seq {
			seq[j] = 1 + r.Int63n(50)
		}
		seqs[i] = seq
	}
	return seqs
}

func TestPadAndSort_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		n := 2 + r.Intn(10)
		maxLen := r.Intn(6) // 0 = unlimited
		seqs := randomSeqs(r, n, 12)

		got, err := PadAndSort(seqs, maxLen)
		if err != nil {
			t.Fatalf("trial %d: PadAndSort() error = %v", trial, err)
		}

		// Lengths are a non-increasing permutation of the capped input lengths.
		capped := make([]int64, n)
		for i, s := range seqs {
			l := len(s)
			if maxLen > 0 && l > maxLen {
				l = maxLen
			}
			capped[i] = int64(l)
		}
		for i := 1; i < n; i++ {
			if got.Lengths[i] > got.Lengths[i-1] {
				t.Fatalf("trial %d: lengths not descending: %v", trial, got.Lengths)
			}
		}
		sortedCapped := append([]int64(nil), capped...)
		sort.Slice(sortedCapped, func(a, b int) bool { return sortedCapped[a] > sortedCapped[b] })
		if !equalInts(sortedCapped, got.Lengths) {
			t.Fatalf("trial %d: lengths %v are not a permutation of %v", trial, got.Lengths, capped)
		}

		if err := got.Perm.Validate(); err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}

		// original[Sorted] == sorted and sorted[Original] == original.
		original, err := got.Original()
		if err != nil {
			t.Fatalf("trial %d: Original() error = %v", trial, err)
		}
		resorted, err := got.Perm.ToSorted(original)
		if err != nil {
			t.Fatalf("trial %d: ToSorted() error = %v", trial, err)
		}
		if !resorted.Equal(got.Data) {
			t.Fatalf("trial %d: original[Sorted] != sorted", trial)
		}

		// Round trip through the mask recovers the capped lengths.
		if masked := MaskedLengths(Mask(original)); !equalInts(masked, capped) {
			t.Fatalf("trial %d: masked lengths %v, want %v", trial, masked, capped)
		}
	}
}

func TestPadWithPermutation(t *testing.T) {
	perm, err := NewPermutation([]int{1, 0})
	if err != nil {
		t.Fatalf("NewPermutation() error = %v", err)
	}

	// Equal-length labels would tie under their own sort; the borrowed
	// permutation must still be used.
	labels := [][]int64{{1, 0}, {0, 1}}
	got, err := PadWithPermutation(labels, 0, perm)
	if err != nil {
		t.Fatalf("PadWithPermutation() error = %v", err)
	}
	if want := mustRows(t, [][]int64{{0, 1}, {1, 0}}, 2); !got.Data.Equal(want) {
		t.Errorf("Data = %v, want %v", got.Data, want)
	}
	original, _ := got.Original()
	if want := mustRows(t, labels, 2); !original.Equal(want) {
		t.Errorf("Original() = %v, want %v", original, want)
	}

	if _, err := PadWithPermutation(labels[:1], 0, perm); err == nil {
		t.Error("PadWithPermutation() expected error for size mismatch")
	}
}
