// Package health tracks the recorder's liveness signals: per-worker
// heartbeats, current producer mode (text/binary/disconnected), and
// reconnect history, the way the supervisor needs them to detect a stuck
// worker and the way an operator needs them for a status snapshot.
package health

import (
	"sync"
	"sync/atomic"
	"time"
)

// Mode describes what the producer/frame-assembler believe the wire is
// currently carrying.
type Mode int32

const (
	ModeText Mode = iota
	ModeBinary
	ModeDisconnected
)

func (m Mode) String() string {
	switch m {
	case ModeBinary:
		return "binary"
	case ModeDisconnected:
		return "disconnected"
	default:
		return "text"
	}
}

// State is the process-wide liveness snapshot. All fields are safe for
// concurrent access via atomics/mutex; callers never need their own lock.
type State struct {
	producerHeartbeat int64  // unix nano, atomic
	consumerHeartbeat int64  // unix nano, atomic
	mode              int32  // atomic Mode
	lastReconnect     int64  // unix nano, atomic; zero if never
	reconnectFailures int64  // atomic, consecutive
	queueDepth        int64  // atomic, current producer->consumer backlog
	lastRawID         uint64 // atomic, most recently assigned raw_lines id

	mu        sync.RWMutex
	lastError string
	framesIn  uint64
	parseErrs uint64
}

// New returns a State with heartbeats stamped to now, so a supervisor
// started just now doesn't immediately see a stale heartbeat.
func New() *State {
	now := time.Now().UnixNano()
	s := &State{producerHeartbeat: now, consumerHeartbeat: now}
	atomic.StoreInt32(&s.mode, int32(ModeText))
	return s
}

func (s *State) TouchProducer() {
	atomic.StoreInt64(&s.producerHeartbeat, time.Now().UnixNano())
}

func (s *State) TouchConsumer() {
	atomic.StoreInt64(&s.consumerHeartbeat, time.Now().UnixNano())
}

func (s *State) ProducerHeartbeat() time.Time {
	return time.Unix(0, atomic.LoadInt64(&s.producerHeartbeat))
}

func (s *State) ConsumerHeartbeat() time.Time {
	return time.Unix(0, atomic.LoadInt64(&s.consumerHeartbeat))
}

func (s *State) SetMode(m Mode) {
	atomic.StoreInt32(&s.mode, int32(m))
}

func (s *State) GetMode() Mode {
	return Mode(atomic.LoadInt32(&s.mode))
}

func (s *State) RecordReconnectAttempt() {
	atomic.StoreInt64(&s.lastReconnect, time.Now().UnixNano())
	atomic.AddInt64(&s.reconnectFailures, 1)
}

func (s *State) RecordReconnectSuccess() {
	atomic.StoreInt64(&s.reconnectFailures, 0)
}

func (s *State) LastReconnect() (time.Time, bool) {
	ns := atomic.LoadInt64(&s.lastReconnect)
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

func (s *State) ConsecutiveReconnectFailures() int64 {
	return atomic.LoadInt64(&s.reconnectFailures)
}

func (s *State) IncFramesIn() {
	s.mu.Lock()
	s.framesIn++
	s.mu.Unlock()
}

func (s *State) IncParseErrors() {
	s.mu.Lock()
	s.parseErrs++
	s.mu.Unlock()
}

func (s *State) SetLastError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

// SetQueueDepth records the current producer->consumer backlog, mirroring
// what pkg/metrics.QueueDepth exposes to Prometheus but readable in-process
// for status() and crash diagnostics.
func (s *State) SetQueueDepth(n int) {
	atomic.StoreInt64(&s.queueDepth, int64(n))
}

func (s *State) QueueDepth() int64 {
	return atomic.LoadInt64(&s.queueDepth)
}

// SetLastRawID records the most recently assigned raw_lines id, so a crash
// dump can report how far ingestion got without querying the store.
func (s *State) SetLastRawID(id uint64) {
	atomic.StoreUint64(&s.lastRawID, id)
}

func (s *State) LastRawID() uint64 {
	return atomic.LoadUint64(&s.lastRawID)
}

// Snapshot is a point-in-time copy of State suitable for JSON encoding or
// logging.
type Snapshot struct {
	ProducerHeartbeat time.Time  `json:"producer_heartbeat"`
	ConsumerHeartbeat time.Time  `json:"consumer_heartbeat"`
	Mode              string     `json:"mode"`
	LastReconnect     *time.Time `json:"last_reconnect,omitempty"`
	ReconnectFailures int64      `json:"reconnect_failures"`
	FramesIngested    uint64     `json:"frames_ingested"`
	ParseErrors       uint64     `json:"parse_errors"`
	LastError         string     `json:"last_error,omitempty"`
	QueueDepth        int64      `json:"queue_depth"`
	LastRawID         uint64     `json:"last_raw_id"`
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ProducerHeartbeat: s.ProducerHeartbeat(),
		ConsumerHeartbeat: s.ConsumerHeartbeat(),
		Mode:              s.GetMode().String(),
		ReconnectFailures: s.ConsecutiveReconnectFailures(),
		FramesIngested:    s.framesIn,
		ParseErrors:       s.parseErrs,
		LastError:         s.lastError,
		QueueDepth:        s.QueueDepth(),
		LastRawID:         s.LastRawID(),
	}
	if t, ok := s.LastReconnect(); ok {
		snap.LastReconnect = &t
	}
	return snap
}

// Stale reports whether either worker's heartbeat is older than timeout,
// the supervisor's trigger for considering a worker stuck.
func (s *State) Stale(timeout time.Duration) bool {
	now := time.Now()
	return now.Sub(s.ProducerHeartbeat()) > timeout || now.Sub(s.ConsumerHeartbeat()) > timeout
}
