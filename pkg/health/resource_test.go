package health

import (
	"testing"
	"time"
)

func TestResourceSensorBasic(t *testing.T) {
	s := NewResourceSensor(t.TempDir(), 20*time.Millisecond)
	s.Start()
	defer s.Stop()

	time.Sleep(60 * time.Millisecond)
	snap := s.Snapshot()
	if snap.Timestamp.IsZero() {
		t.Fatalf("expected a non-zero snapshot timestamp after sampling")
	}
	if snap.DiskTotal == 0 {
		t.Fatalf("expected a non-zero DiskTotal from Statfs on a real directory")
	}
}

func TestResourceSensorStopIsIdempotentAndJoins(t *testing.T) {
	s := NewResourceSensor(t.TempDir(), 5*time.Millisecond)
	s.Start()
	time.Sleep(15 * time.Millisecond)
	s.Stop()
	s.Stop() // a second Stop must not block or panic

	snapAfterStop := s.Snapshot()
	time.Sleep(20 * time.Millisecond)
	if s.Snapshot().Timestamp != snapAfterStop.Timestamp {
		t.Fatalf("no further samples should be taken after Stop")
	}
}
