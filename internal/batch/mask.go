package batch

import (
	"github.com/matsen/docqa/internal/sample"
	"github.com/matsen/docqa/internal/tensor"
)

// PadID is the value padding cells hold.
const PadID = sample.PadID

// Mask returns a tensor shaped like t with 1 where t differs from PadID and 0 elsewhere.
func Mask(t *tensor.Tensor) *tensor.Tensor {
	out := t.Data()
	for i, v := range out {
		if v != PadID {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	m, _ := tensor.FromData(out, t.Shape()...)
	return m
}

// MaskedLengths sums each row of a 2-D mask.
func MaskedLengths(mask *tensor.Tensor) []int64 {
	rows := mask.Rows()
	lengths := make([]int64, len(rows))
	for i, r := range rows {
		for _, v := range r {
			lengths[i] += v
		}
	}
	return lengths
}
