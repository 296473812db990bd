// Package camera acquires and releases the exclusive video-capture resource
// used for live face detection.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
)

var (
	// ErrPermissionDenied is returned when the device refuses access.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceUnavailable is returned when the device can not be reached or opened.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
)

// Stream is a live video source. All tracks are released by Close.
type Stream interface {
	// Frame returns the most recently decoded frame, false until one is available.
	Frame() (image.Image, bool)
	// Size returns the native resolution, 0x0 while unknown.
	Size() (width, height int)
	// Close releases the stream. Calling it more than once is safe.
	Close() error
}

// Device opens exclusive streams from a video-capture source.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Manager owns at most one active stream from a device.
type Manager struct {
	device Device
	mu     sync.Mutex
	active Stream
}

// NewManager creates a manager for the given device.
func NewManager(device Device) *Manager {
	return &Manager{device: device}
}

// Start acquires the device and returns the live stream.
// A stream that is already active is stopped first, so two are never held at once.
func (m *Manager) Start(ctx context.Context) (Stream, error) {
	if m.device == nil {
		return nil, fmt.Errorf("%w: no camera configured", ErrDeviceUnavailable)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseLocked()

	s, err := m.device.Open(ctx)
	if err != nil {
		return nil, classify(err)
	}
	m.active = s
	return s, nil
}

// Stop releases the active stream. It is a no-op when none is active.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

// Active returns the live stream, or nil.
func (m *Manager) Active() Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Manager) releaseLocked() {
	if m.active == nil {
		return
	}
	if err := m.active.Close(); err != nil {
		log.Printf("camera: error releasing stream: %v", err)
	}
	m.active = nil
}

// classify makes sure every acquisition failure carries one of the package sentinels.
func classify(err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
}
