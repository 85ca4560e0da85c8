package health

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ResourceSnapshot is a lightweight view of host/disk resources, used for
// the "disk-write health" field of a status snapshot. Disk figures come
// from a Statfs call against output_dir so a full device only shows up
// here, not as a crash.
type ResourceSnapshot struct {
	Timestamp time.Time
	MemTotal  uint64
	MemUsed   uint64
	DiskTotal uint64
	DiskFree  uint64
}

// ResourceSensor polls output_dir's filesystem on an interval and keeps the
// latest ResourceSnapshot available without blocking the hot path.
type ResourceSensor struct {
	mu   sync.RWMutex
	snap ResourceSnapshot

	path     string
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewResourceSensor creates a sensor that polls path every interval.
func NewResourceSensor(path string, interval time.Duration) *ResourceSensor {
	s := &ResourceSensor{path: path, interval: interval}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Start begins background polling. Call Stop to terminate.
func (s *ResourceSensor) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.sample()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.sample()
			}
		}
	}()
}

// Stop stops background polling and waits for the worker to exit.
func (s *ResourceSensor) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Snapshot returns the most recent sample.
func (s *ResourceSensor) Snapshot() ResourceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *ResourceSensor) sample() {
	snap := ResourceSnapshot{Timestamp: time.Now()}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	snap.MemTotal = mem.Sys
	snap.MemUsed = mem.Alloc

	var st unix.Statfs_t
	if err := unix.Statfs(s.path, &st); err == nil {
		blockSize := uint64(st.Bsize)
		snap.DiskTotal = st.Blocks * blockSize
		snap.DiskFree = st.Bavail * blockSize
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}
