package stream

import (
	"sync"

	"github.com/moontrade/mersenne/twister"
)

// Policy selects how a Device hands engines to its handles.
type Policy int

const (
	// PerHandle gives every handle its own engine seeded with the device
	// seed. No locking, full reproducibility per handle.
	PerHandle Policy = iota
	// Shared makes every handle draw from one locked engine, emulating a
	// single global character device.
	Shared
)

func (p Policy) String() string {
	switch p {
	case PerHandle:
		return "per-handle"
	case Shared:
		return "shared"
	default:
		return "unknown"
	}
}

// Device hosts the generator behind open/read/close semantics.
type Device struct {
	seed   uint32
	policy Policy
	shared *twister.Locked

	mu     sync.Mutex
	closed bool
	open   map[*Handle]struct{}
}

// NewDevice returns a device whose engines start from seed.
func NewDevice(seed uint32, policy Policy) *Device {
	d := &Device{seed: seed, policy: policy}
	d.open = make(map[*Handle]struct{})
	if policy == Shared {
		d.shared = twister.NewLocked(seed)
	}
	return d
}

// Policy returns the device policy.
func (d *Device) Policy() Policy { return d.policy }

// Open returns a new handle.
func (d *Device) Open() (*Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrStreamUnavailable
	}
	h := &Handle{dev: d}
	if d.policy == PerHandle {
		h.own = twister.New(d.seed)
	}
	d.open[h] = struct{}{}
	return h, nil
}

// Close closes every open handle and rejects further opens.
func (d *Device) Close() error {
	d.mu.Lock()
	handles := make([]*Handle, 0, len(d.open))
	for h := range d.open {
		handles = append(handles, h)
	}
	d.closed = true
	d.mu.Unlock()
	for _, h := range handles {
		h.Close()
	}
	return nil
}

func (d *Device) release(h *Handle) {
	d.mu.Lock()
	delete(d.open, h)
	d.mu.Unlock()
}

// Handle is one open stream on a Device. A handle is safe for concurrent
// use; with the PerHandle policy its draws are serialized on the handle.
type Handle struct {
	dev *Device
	own *twister.Engine

	mu     sync.Mutex
	closed bool
}

// Bytes reads n bytes from the handle's engine.
func (h *Handle) Bytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, ErrInvalidLength
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrStreamUnavailable
	}
	if h.own != nil {
		return Fill(h.own, n)
	}
	var b []byte
	var err error
	h.dev.shared.Do(func(e *twister.Engine) {
		b, err = Fill(e, n)
	})
	return b, err
}

// Seed re-seeds the engine behind the handle. With the Shared policy this
// resets the sequence for every handle.
func (h *Handle) Seed(seed uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrStreamUnavailable
	}
	if h.own != nil {
		h.own.Seed(seed)
	} else {
		h.dev.shared.Seed(seed)
	}
	return nil
}

// Close releases the handle. Closing twice is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.own = nil
	h.mu.Unlock()
	h.dev.release(h)
	return nil
}
