package camera

import (
	"context"
	"errors"
	"testing"
)

func TestExclusiveDevice_OneStreamAcrossManagers(t *testing.T) {
	dev := &fakeDevice{}
	shared := NewExclusiveDevice(dev)
	first := NewManager(shared)
	second := NewManager(shared)

	if _, err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	_, err := second.Start(context.Background())
	if !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected ErrInUse to classify as ErrDeviceUnavailable, got %v", err)
	}
	if second.Active() != nil {
		t.Error("expected no stream on the second manager")
	}
	if dev.maxOpen != 1 {
		t.Errorf("expected at most 1 open stream, saw %d", dev.maxOpen)
	}

	first.Stop()
	if _, err := second.Start(context.Background()); err != nil {
		t.Fatalf("Start after release failed: %v", err)
	}
	if dev.openCount() != 1 {
		t.Errorf("expected 1 open stream, got %d", dev.openCount())
	}
}

func TestExclusiveDevice_RestartSameManager(t *testing.T) {
	dev := &fakeDevice{}
	m := NewManager(NewExclusiveDevice(dev))

	for i := 0; i < 3; i++ {
		if _, err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start %d failed: %v", i, err)
		}
	}
	if dev.maxOpen != 1 {
		t.Errorf("expected at most 1 open stream, saw %d", dev.maxOpen)
	}
}

func TestExclusiveDevice_FailedOpenFreesDevice(t *testing.T) {
	dev := &fakeDevice{err: ErrPermissionDenied}
	shared := NewExclusiveDevice(dev)

	if _, err := shared.Open(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	dev.err = nil
	s, err := shared.Open(context.Background())
	if err != nil {
		t.Fatalf("expected device to be free after failed open, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, err := shared.Open(context.Background()); err != nil {
		t.Errorf("expected Open after Close to succeed, got %v", err)
	}
}
