// Package supervisor owns the producer and consumer goroutines: it starts
// them, watches their heartbeats, respawns a worker that looks hung or that
// crashed outright, and drives the cooperative shutdown sequence when the
// process is asked to stop (spec.md §4.6).
package supervisor

import (
	"context"
	"sync"
	"time"

	"adcprecorder/pkg/health"
	"adcprecorder/pkg/logger"
	"adcprecorder/pkg/metrics"
	"adcprecorder/pkg/shutdown"
	"adcprecorder/pkg/store"
)

// Runner is anything the supervisor can start and cooperatively cancel. Both
// *producer.Producer and *consumer.Consumer satisfy this via their Run
// methods.
type Runner interface {
	Run(ctx context.Context) error
}

// Config tunes liveness checking, respawn rate limiting, and shutdown grace
// (spec.md §6, §4.6).
type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	RespawnWindow     time.Duration
	RespawnLimit      int
	RespawnCooldown   time.Duration
	ShutdownGrace     time.Duration

	// OutputDir and SerialPort are only used to label the non-fatal
	// diagnostic record written when a worker's respawn limit is exceeded
	// (see respawn); the supervisor has no other use for either.
	OutputDir  string
	SerialPort string
}

// worker is one supervised goroutine slot: a factory that builds a fresh
// Runner for each spawn generation (so a respawned producer starts with a
// clean frame assembler, not whatever state the hung one left behind), plus
// the bookkeeping needed to rate-limit respawns.
type worker struct {
	name    string
	factory func() Runner

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	respawns []time.Time
	cooldown time.Time
}

// Supervisor runs the producer and consumer workers under liveness
// supervision until its parent context is canceled.
type Supervisor struct {
	cfg    Config
	health *health.State

	producer *worker
	consumer *worker
}

// New builds a Supervisor. producerFactory and consumerFactory must each
// return a fresh Runner instance per call, since a respawn discards the
// previous generation's in-memory state.
func New(cfg Config, h *health.State, producerFactory, consumerFactory func() Runner) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		health:   h,
		producer: &worker{name: "producer", factory: producerFactory},
		consumer: &worker{name: "consumer", factory: consumerFactory},
	}
}

// Run ensures the schema is migrated, starts both workers, and blocks,
// restarting hung or crashed workers, until ctx is canceled. On cancellation
// it cancels both workers and waits up to cfg.ShutdownGrace for them to
// exit before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := store.EnsureSchema(); err != nil {
		return err
	}

	s.spawn(ctx, s.producer)
	s.spawn(ctx, s.consumer)

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown()
		case <-ticker.C:
			s.check(ctx, s.producer, s.health.ProducerHeartbeat)
			s.check(ctx, s.consumer, s.health.ConsumerHeartbeat)
		}
	}
}

// spawn starts a new generation of w under ctx.
func (s *Supervisor) spawn(ctx context.Context, w *worker) {
	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	done := make(chan struct{})
	w.done = done

	runner := w.factory()
	go func() {
		defer close(done)
		if err := runner.Run(wctx); err != nil && wctx.Err() == nil {
			logger.Error("worker_exited", "worker", w.name, "err", err)
		}
	}()
	logger.Info("worker_started", "worker", w.name)
}

// check inspects w's liveness: if it already exited on its own (and the
// supervisor's parent context is still live), that's a crash and it is
// respawned immediately. If it's still running but its heartbeat is stale,
// it's presumed hung: cancel it, wait for it to unwind, then respawn.
func (s *Supervisor) check(ctx context.Context, w *worker, heartbeat func() time.Time) {
	if ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
		logger.Warn("worker_crashed", "worker", w.name)
		s.respawn(ctx, w)
		return
	default:
	}

	if time.Since(heartbeat()) <= s.cfg.HeartbeatTimeout {
		return
	}

	logger.Warn("worker_heartbeat_stale", "worker", w.name, "timeout", s.cfg.HeartbeatTimeout)
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-done
	s.respawn(ctx, w)
}

// respawn applies the respawn-rate-limit rule (spec.md §4.6: after three
// consecutive respawns within 60s, cool down for 30s before retrying) and
// starts a fresh generation of w unless a cooldown is in effect.
func (s *Supervisor) respawn(ctx context.Context, w *worker) {
	now := time.Now()

	w.mu.Lock()
	if now.Before(w.cooldown) {
		w.mu.Unlock()
		logger.Warn("worker_respawn_suppressed_cooldown", "worker", w.name, "until", w.cooldown)
		return
	}

	cutoff := now.Add(-s.cfg.RespawnWindow)
	kept := w.respawns[:0]
	for _, t := range w.respawns {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	w.respawns = kept

	if len(w.respawns) > s.cfg.RespawnLimit {
		w.cooldown = now.Add(s.cfg.RespawnCooldown)
		w.respawns = nil
		w.mu.Unlock()
		logger.Error("worker_respawn_limit_exceeded", "worker", w.name, "cooldown", s.cfg.RespawnCooldown)

		snap := s.health.Snapshot()
		diag := &shutdown.RecorderDiagnostics{
			SerialPort:        s.cfg.SerialPort,
			Mode:              snap.Mode,
			QueueDepth:        snap.QueueDepth,
			LastRawID:         snap.LastRawID,
			FramesIngested:    snap.FramesIngested,
			ParseErrors:       snap.ParseErrors,
			ReconnectFailures: snap.ReconnectFailures,
			LastError:         snap.LastError,
		}
		if path, err := shutdown.WriteHealthEscalation(s.cfg.OutputDir, "respawn_limit_exceeded worker="+w.name, diag); err != nil {
			logger.Error("health_escalation_write_failed", "worker", w.name, "err", err)
		} else {
			logger.Warn("health_escalation_written", "worker", w.name, "path", path)
		}
		return
	}
	w.mu.Unlock()

	metrics.RespawnCount.Inc()
	s.spawn(ctx, w)
}

// shutdown cancels both workers and waits up to cfg.ShutdownGrace for them
// to exit; any worker still alive past the deadline is left to the caller's
// parent process teardown (e.g. closing the store out from under it).
func (s *Supervisor) shutdown() error {
	w := []*worker{s.producer, s.consumer}
	for _, wk := range w {
		wk.mu.Lock()
		if wk.cancel != nil {
			wk.cancel()
		}
		wk.mu.Unlock()
	}

	deadline := time.After(s.cfg.ShutdownGrace)
	for _, wk := range w {
		wk.mu.Lock()
		done := wk.done
		wk.mu.Unlock()
		select {
		case <-done:
			logger.Info("worker_stopped", "worker", wk.name)
		case <-deadline:
			logger.Warn("worker_shutdown_grace_exceeded", "worker", wk.name)
		}
	}
	return nil
}
