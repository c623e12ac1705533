// Package tensor provides dense row-major int64 tensors for batched token ids.
package tensor

import (
	"encoding/json"
	"fmt"
)

// Host is the device label of tensors that have not been placed anywhere.
const Host = "host"

// Tensor is a dense row-major int64 array with a fixed shape.
type Tensor struct {
	shape  []int
	data   []int64
	device string
}

// New returns a zero-filled tensor with the given shape.
func New(shape ...int) *Tensor {
	size := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension %d in shape %v", d, shape))
		}
		size *= d
	}
	return &Tensor{
		shape:  append([]int(nil), shape...),
		data:   make([]int64, size),
		device: Host,
	}
}

// FromVector returns a 1-D tensor holding a copy of v.
func FromVector(v []int64) *Tensor {
	t := New(len(v))
	copy(t.data, v)
	return t
}

// FromInts returns a 1-D tensor from an int slice.
func FromInts(v []int) *Tensor {
	t := New(len(v))
	for i, x := range v {
		t.data[i] = int64(x)
	}
	return t
}

// FromData wraps data as a tensor of the given shape without copying.
// The caller must not touch data afterwards.
func FromData(data []int64, shape ...int) (*Tensor, error) {
	size := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension %d in shape %v", d, shape)
		}
		size *= d
	}
	if size != len(data) {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, size, len(data))
	}
	return &Tensor{shape: append([]int(nil), shape...), data: data, device: Host}, nil
}

// FromRows returns a (len(rows), width) tensor. Rows shorter than width are
// zero-padded on the right; longer rows are an error.
func FromRows(rows [][]int64, width int) (*Tensor, error) {
	t := New(len(rows), width)
	for i, row := range rows {
		if len(row) > width {
			return nil, fmt.Errorf("row %d has length %d, exceeds width %d", i, len(row), width)
		}
		copy(t.data[i*width:], row)
	}
	return t, nil
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int {
	return t.shape[i]
}

// Len returns the total number of elements.
func (t *Tensor) Len() int {
	return len(t.data)
}

// Data returns a copy of the elements in row-major order.
func (t *Tensor) Data() []int64 {
	return append([]int64(nil), t.data...)
}

// Device returns the label of the device the tensor lives on.
func (t *Tensor) Device() string {
	return t.device
}

// SizeBytes returns the storage size in bytes.
func (t *Tensor) SizeBytes() int64 {
	return int64(len(t.data)) * 8
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: index %v has rank %d, tensor has rank %d", idx, len(idx), len(t.shape)))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off = off*t.shape[i] + x
	}
	return off
}

// At returns the element at idx.
func (t *Tensor) At(idx ...int) int64 {
	return t.data[t.offset(idx)]
}

// Set stores v at idx.
func (t *Tensor) Set(v int64, idx ...int) {
	t.data[t.offset(idx)] = v
}

// rowSize is the number of elements in one slice along the first axis.
func (t *Tensor) rowSize() int {
	if len(t.shape) == 0 || t.shape[0] == 0 {
		return 0
	}
	return len(t.data) / t.shape[0]
}

// Row returns a copy of slice i along the first axis, flattened.
func (t *Tensor) Row(i int) []int64 {
	n := t.rowSize()
	return append([]int64(nil), t.data[i*n:(i+1)*n]...)
}

// Rows returns a 2-D tensor's rows as slices.
func (t *Tensor) Rows() [][]int64 {
	if t.Rank() == 0 {
		return nil
	}
	rows := make([][]int64, t.shape[0])
	for i := range rows {
		rows[i] = t.Row(i)
	}
	return rows
}

// Gather returns a new tensor whose slice k along the first axis is slice
// idx[k] of t: result[k] = t[idx[k]].
func (t *Tensor) Gather(idx []int) (*Tensor, error) {
	if t.Rank() == 0 {
		return nil, fmt.Errorf("gather on a scalar tensor")
	}
	shape := t.Shape()
	shape[0] = len(idx)
	out := New(shape...)
	out.device = t.device
	n := t.rowSize()
	for k, src := range idx {
		if src < 0 || src >= t.shape[0] {
			return nil, fmt.Errorf("gather index %d out of range [0, %d)", src, t.shape[0])
		}
		copy(out.data[k*n:(k+1)*n], t.data[src*n:(src+1)*n])
	}
	return out, nil
}

// Clone returns a deep copy of t on the same device.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		shape:  t.Shape(),
		data:   append([]int64(nil), t.data...),
		device: t.device,
	}
}

// WithDevice returns a deep copy of t labelled with device.
func (t *Tensor) WithDevice(device string) *Tensor {
	c := t.Clone()
	c.device = device
	return c
}

// Equal reports whether t and o have the same shape and elements.
// Device placement is ignored.
func (t *Tensor) Equal(o *Tensor) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.shape) != len(o.shape) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}
	for i := range t.data {
		if t.data[i] != o.data[i] {
			return false
		}
	}
	return true
}

// String renders small tensors for debugging.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v@%s%v", t.shape, t.device, t.data)
}

type tensorJSON struct {
	Shape  []int   `json:"shape"`
	Data   []int64 `json:"data"`
	Device string  `json:"device,omitempty"`
}

// MarshalJSON encodes the tensor as shape, flat data and device.
func (t *Tensor) MarshalJSON() ([]byte, error) {
	return json.Marshal(tensorJSON{Shape: t.shape, Data: t.data, Device: t.device})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (t *Tensor) UnmarshalJSON(b []byte) error {
	var raw tensorJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	size := 1
	for _, d := range raw.Shape {
		if d < 0 {
			return fmt.Errorf("negative dimension %d in shape %v", d, raw.Shape)
		}
		size *= d
	}
	if size != len(raw.Data) {
		return fmt.Errorf("shape %v needs %d elements, got %d", raw.Shape, size, len(raw.Data))
	}
	t.shape = raw.Shape
	t.data = raw.Data
	if t.data == nil {
		t.data = []int64{}
	}
	t.device = raw.Device
	if t.device == "" {
		t.device = Host
	}
	return nil
}
