package camera

import (
	"context"
	"fmt"
	"sync"
)

// ErrInUse is returned when another session already holds the device.
var ErrInUse = fmt.Errorf("%w: in use by another session", ErrDeviceUnavailable)

// ExclusiveDevice lets at most one stream of the wrapped device be open at a time.
// Sessions share it so two views never hold the same physical camera.
type ExclusiveDevice struct {
	dev  Device
	mu   sync.Mutex
	busy bool
}

// NewExclusiveDevice wraps dev.
func NewExclusiveDevice(dev Device) *ExclusiveDevice {
	return &ExclusiveDevice{dev: dev}
}

// Open opens the wrapped device, or fails with ErrInUse while a stream is open.
func (d *ExclusiveDevice) Open(ctx context.Context) (Stream, error) {
	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return nil, ErrInUse
	}
	d.busy = true
	d.mu.Unlock()

	s, err := d.dev.Open(ctx)
	if err != nil {
		d.release()
		return nil, err
	}
	return &exclusiveStream{Stream: s, release: d.release}, nil
}

func (d *ExclusiveDevice) release() {
	d.mu.Lock()
	d.busy = false
	d.mu.Unlock()
}

type exclusiveStream struct {
	Stream
	once    sync.Once
	release func()
}

func (s *exclusiveStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.Stream.Close()
		s.release()
	})
	return err
}
