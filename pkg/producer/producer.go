// Package producer owns the serial line: it reads raw bytes, hands them to
// the frame assembler, pushes completed frames onto a bounded queue for the
// consumer, and reconnects with exponential backoff whenever the line is
// lost. This is the recorder's adaptation of the teacher's pkg/ingest
// bounded-queue-plus-pooled-buffer ingestion path onto a single serial
// source instead of many HTTP callers.
package producer

import (
	"context"
	"math/rand"
	"time"

	"github.com/valyala/bytebufferpool"

	"adcprecorder/pkg/config"
	"adcprecorder/pkg/frame"
	"adcprecorder/pkg/health"
	"adcprecorder/pkg/logger"
	"adcprecorder/pkg/metrics"
	"adcprecorder/pkg/serial"
)

// Item is one unit of work handed to the consumer: either a completed
// sentence frame or a binary-mode blob to persist. Buf is returned to the
// shared bytebufferpool once the consumer is done with it, the same
// pooled-buffer discipline the teacher's ingest queue used for chunk
// payloads.
type Item struct {
	Frame  frame.Frame
	Blob   []byte
	IsBlob bool
	buf    *bytebufferpool.ByteBuffer
}

// Release returns Item's backing buffer to the pool. Consumers must call
// this exactly once after they're done reading Frame.Raw/Blob.
func (it *Item) Release() {
	if it.buf != nil {
		bytebufferpool.Put(it.buf)
		it.buf = nil
	}
}

// Queue is the bounded handoff between producer and consumer.
type Queue chan Item

// NewQueue creates a Queue with the configured capacity.
func NewQueue(capacity int) Queue {
	return make(Queue, capacity)
}

// Producer drains the serial line into a Queue until ctx is canceled.
type Producer struct {
	settings serial.Settings
	frameCfg frame.Config
	reconn   config.ReconnectConfig
	health   *health.State
	queue    Queue

	asm *frame.Assembler
}

// New builds a Producer. queue must be shared with the consumer started
// alongside it.
func New(settings serial.Settings, frameCfg frame.Config, reconn config.ReconnectConfig, h *health.State, queue Queue) *Producer {
	return &Producer{
		settings: settings,
		frameCfg: frameCfg,
		reconn:   reconn,
		health:   h,
		queue:    queue,
		asm:      frame.New(frameCfg),
	}
}

// Run opens the serial line and reads from it until ctx is canceled,
// reconnecting with exponential backoff plus jitter across any read error.
// It never returns a value the supervisor must act on beyond ctx.Err(): a
// lost device is always retried, per spec.md's always-on mandate.
func (p *Producer) Run(ctx context.Context) error {
	backoff := time.Duration(p.reconn.BackoffMsMin) * time.Millisecond
	maxBackoff := time.Duration(p.reconn.BackoffMsMax) * time.Millisecond

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		port, err := serial.Open(p.settings)
		if err != nil {
			p.health.SetMode(health.ModeDisconnected)
			p.health.RecordReconnectAttempt()
			p.health.SetLastError(err.Error())
			logger.Warn("serial_open_failed", "port", p.settings.Port, "err", err, "backoff_ms", backoff.Milliseconds())
			metrics.ReconnectAttempts.Inc()
			if !sleepCtx(ctx, jitter(backoff)) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}

		p.health.RecordReconnectSuccess()
		p.health.SetMode(health.ModeText)
		backoff = time.Duration(p.reconn.BackoffMsMin) * time.Millisecond
		p.asm.Reset() // carry-over from any prior connection is not trustworthy

		readErr := p.readLoop(ctx, port)
		port.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.health.SetMode(health.ModeDisconnected)
		p.health.SetLastError(readErr.Error())
		logger.Warn("serial_read_lost", "port", p.settings.Port, "err", readErr)
		if !sleepCtx(ctx, jitter(backoff)) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

func (p *Producer) readLoop(ctx context.Context, port *serial.Port) error {
	buf := make([]byte, 4096)
	lastBinaryCheck := time.Now()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := port.Read(buf)
		now := time.Now()
		p.health.TouchProducer()

		if err != nil {
			return err
		}

		if n == 0 {
			// Read timeout, not EOF. Use the idle moment to check whether a
			// stalled binary-mode run should be force-flushed.
			if p.asm.InBinaryMode() && now.Sub(lastBinaryCheck) > 50*time.Millisecond {
				lastBinaryCheck = now
				if p.asm.Quiet(now) {
					p.emitBlob(ctx, p.asm.FlushBinary(), now)
					p.health.SetMode(health.ModeText)
				}
			}
			continue
		}

		res := p.asm.Feed(buf[:n], now)

		if res.DroppedOversize > 0 {
			logger.Warn("frame_dropped_oversize", "count", res.DroppedOversize)
		}
		if res.EnteredBinary {
			p.health.SetMode(health.ModeBinary)
			metrics.BinaryModeTransitions.Inc()
			logger.Warn("entered_binary_mode")
		}
		if res.ExitedBinary {
			p.health.SetMode(health.ModeText)
			p.emitBlob(ctx, res.BinaryBlob, now)
		}

		for _, f := range res.Frames {
			metrics.FramesIngested.Inc()
			p.health.IncFramesIn()
			if !p.enqueue(ctx, Item{Frame: f}) {
				return ctx.Err()
			}
		}
	}
}

func (p *Producer) emitBlob(ctx context.Context, blob []byte, now time.Time) {
	if len(blob) == 0 {
		return
	}
	p.enqueue(ctx, Item{Blob: blob, IsBlob: true, Frame: frame.Frame{Timestamp: now}})
}

// enqueue copies raw bytes into a pooled buffer before handing the Item to
// the consumer, so the producer's own read buffer can be reused
// immediately instead of waiting on the consumer.
func (p *Producer) enqueue(ctx context.Context, it Item) bool {
	bb := bytebufferpool.Get()
	if it.IsBlob {
		bb.Write(it.Blob)
		it.Blob = bb.Bytes()
	} else {
		bb.Write(it.Frame.Raw)
		it.Frame.Raw = bb.Bytes()
	}
	it.buf = bb

	select {
	case p.queue <- it:
		depth := len(p.queue)
		metrics.QueueDepth.Set(float64(depth))
		p.health.SetQueueDepth(depth)
		return true
	case <-ctx.Done():
		bytebufferpool.Put(bb)
		return false
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		next = max
	}
	return next
}

// jitter returns d randomized within +/-20%, avoiding a thundering herd of
// reconnects if multiple recorders share a backoff schedule.
func jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * delta
	return d + time.Duration(offset)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
