// Package device models the compute targets batches are moved to before a
// forward pass.
package device

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/matsen/docqa/internal/tensor"
)

// Device names accepted by Lookup.
const (
	NameCPU   = "cpu"
	NameArena = "arena"
)

// DefaultArenaCapacity is used when an arena is requested without a capacity (256 MiB).
const DefaultArenaCapacity = 256 << 20

// Errors returned by devices.
var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrOutOfMemory   = errors.New("device out of memory")
)

// Device places tensors on a compute target. Place may block; it has no
// timeout and no partial rollback.
type Device interface {
	Name() string
	Place(t *tensor.Tensor) (*tensor.Tensor, error)
}

// CPU is the host device. Placement always succeeds.
type CPU struct{}

// Name returns "cpu".
func (CPU) Name() string { return NameCPU }

// Place returns a copy of t labelled cpu.
func (CPU) Place(t *tensor.Tensor) (*tensor.Tensor, error) {
	if t == nil {
		return nil, fmt.Errorf("nil tensor")
	}
	return t.WithDevice(NameCPU), nil
}

// Arena is a fixed-capacity device. Every placement reserves the tensor's
// size until Release or Reset; placing past capacity fails with ErrOutOfMemory.
type Arena struct {
	name     string
	capacity int64

	mu   sync.Mutex
	used int64
}

// NewArena creates an arena with the given capacity in bytes.
func NewArena(name string, capacity int64) *Arena {
	if capacity <= 0 {
		capacity = DefaultArenaCapacity
	}
	return &Arena{name: name, capacity: capacity}
}

// Name returns the arena's name.
func (a *Arena) Name() string { return a.name }

// Capacity returns the arena size in bytes.
func (a *Arena) Capacity() int64 { return a.capacity }

// Used returns the number of reserved bytes.
func (a *Arena) Used() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Place reserves space for t and returns a copy labelled with the arena's name.
func (a *Arena) Place(t *tensor.Tensor) (*tensor.Tensor, error) {
	if t == nil {
		return nil, fmt.Errorf("nil tensor")
	}
	size := t.SizeBytes()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.used+size > a.capacity {
		return nil, fmt.Errorf("%w: %s needs %d bytes, %d of %d free",
			ErrOutOfMemory, a.name, size, a.capacity-a.used, a.capacity)
	}
	a.used += size
	return t.WithDevice(a.name), nil
}

// Release returns bytes to the arena.
func (a *Arena) Release(bytes int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used -= bytes
	if a.used < 0 {
		a.used = 0
	}
}

// Reset frees every reservation.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used = 0
}

// Lookup resolves a configured device name. capacity only applies to arenas.
func Lookup(name string, capacity int64) (Device, error) {
	switch strings.ToLower(name) {
	case "", NameCPU:
		return CPU{}, nil
	case NameArena:
		return NewArena(NameArena, capacity), nil
	default:
		return nil, fmt.Errorf("%w: %q (valid: %s, %s)", ErrUnknownDevice, name, NameCPU, NameArena)
	}
}
