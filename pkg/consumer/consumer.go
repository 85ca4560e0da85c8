// Package consumer drains a producer.Queue, classifies each frame, and
// fans the result out to the embedded store and the per-type daily text
// files, mirroring the teacher's ingest fan-out (one write path raw, one
// parsed, one error) onto the recorder's own three destinations.
package consumer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"adcprecorder/pkg/classify"
	"adcprecorder/pkg/dailyfile"
	"adcprecorder/pkg/health"
	"adcprecorder/pkg/logger"
	"adcprecorder/pkg/metrics"
	"adcprecorder/pkg/nortek"
	"adcprecorder/pkg/producer"
	"adcprecorder/pkg/state"
	"adcprecorder/pkg/store"
)

// Consumer drains a producer.Queue until it is closed or ctx is canceled.
type Consumer struct {
	queue     producer.Queue
	nortekCfg nortek.Config
	health    *health.State
	daily     *dailyfile.Writer
	paths     state.Paths
}

// New builds a Consumer bound to queue.
func New(queue producer.Queue, nortekCfg nortek.Config, h *health.State, daily *dailyfile.Writer, paths state.Paths) *Consumer {
	return &Consumer{queue: queue, nortekCfg: nortekCfg, health: h, daily: daily, paths: paths}
}

// Run processes items from the queue until ctx is canceled and the queue
// drains, or the queue channel is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case item, ok := <-c.queue:
			if !ok {
				return nil
			}
			c.handle(item)
			item.Release()
			c.health.TouchConsumer()
		case <-ctx.Done():
			// Drain whatever is already queued before exiting, so a clean
			// shutdown doesn't drop frames the producer already accepted.
			for {
				select {
				case item, ok := <-c.queue:
					if !ok {
						return ctx.Err()
					}
					c.handle(item)
					item.Release()
				default:
					return ctx.Err()
				}
			}
		}
	}
}

func (c *Consumer) handle(item producer.Item) {
	if item.IsBlob {
		path, err := dailyfile.WriteBinaryBlob(c.paths.Binary, item.Frame.Timestamp, item.Blob)
		if err != nil {
			logger.Error("binary_blob_write_failed", "err", err)
			return
		}
		logger.Warn("binary_blob_written", "path", path, "bytes", len(item.Blob))
		return
	}

	raw := string(item.Frame.Raw)
	ts := item.Frame.Timestamp
	line := normalizeLine(raw)

	rawID, err := store.PutRawLine(raw, ts)
	if err != nil {
		logger.Error("raw_persist_failed", "err", err)
	}
	c.health.SetLastRawID(rawID)

	res := classify.Classify(item.Frame, c.nortekCfg)

	switch res.Outcome {
	case classify.OutcomeParsed:
		c.storeParsed(rawID, res, raw, line, ts)
	case classify.OutcomeChecksumMismatch:
		c.storeError(rawID, res.Prefix, "CHECKSUM_MISMATCH", "computed checksum did not match sentence", raw, line, ts, boolPtr(false))
	case classify.OutcomeUnknownPrefix:
		c.storeError(rawID, res.Prefix, "UNKNOWN_PREFIX", fmt.Sprintf("prefix %q is not in the registry", res.Prefix), raw, line, ts, boolPtr(true))
	case classify.OutcomeParseError:
		kind := "DECODE_ERROR"
		reason := "unknown parse failure"
		if res.ParseError != nil {
			kind = string(res.ParseError.Kind)
			reason = res.ParseError.Message
		}
		c.storeError(rawID, res.Prefix, kind, reason, raw, line, ts, boolPtr(true))
	case classify.OutcomeMalformed:
		// The '*HH' checksum could not be read (no delimiter, or the two
		// bytes after '*' are not hex), so checksum validity isn't
		// applicable (spec.md §4.3: still recorded as a Frame).
		c.storeError(rawID, "", "BAD_CHECKSUM_FORMAT", "sentence missing a valid '*HH' checksum delimiter", raw, line, ts, nil)
	}
}

func (c *Consumer) storeParsed(rawID uint64, res classify.Result, raw, line string, ts time.Time) {
	if _, err := store.PutParsedRecord(res.Prefix, raw, res.Record.Fields, ts); err != nil {
		logger.Error("record_persist_failed", "prefix", res.Prefix, "err", err)
	}
	if err := store.UpdateRawLineStatus(rawID, ts, store.RawOK, res.Prefix, boolPtr(true), ""); err != nil {
		logger.Error("raw_update_failed", "err", err)
	}
	metrics.RecordsByPrefix.WithLabelValues(res.Prefix).Inc()

	// The per-type daily file carries the verbatim sentence, not a derived
	// representation, so it reads as the instrument's own wire log
	// (spec.md §4.5, §6).
	if err := c.daily.WriteRecord(res.Prefix, ts, line); err != nil {
		logger.Error("daily_write_failed", "prefix", res.Prefix, "err", err)
	}
}

func (c *Consumer) storeError(rawID uint64, prefix, kind, reason, raw, line string, ts time.Time, checksumValid *bool) {
	if _, err := store.PutParseError(prefix, kind, reason, raw, ts); err != nil {
		logger.Error("error_persist_failed", "err", err)
	}
	if err := store.UpdateRawLineStatus(rawID, ts, store.RawFail, prefix, checksumValid, reason); err != nil {
		logger.Error("raw_update_failed", "err", err)
	}
	metrics.ParseErrorsByKind.WithLabelValues(kind).Inc()
	c.health.IncParseErrors()

	// A checksum failure on a registered prefix still goes to that prefix's
	// daily file; every other rejection goes to the shared ERRORS file.
	if _, known := nortek.Registry[prefix]; known && kind == "CHECKSUM_MISMATCH" {
		if err := c.daily.WriteRecord(prefix, ts, line); err != nil {
			logger.Error("daily_write_failed", "prefix", prefix, "err", err)
		}
		return
	}
	if err := c.daily.WriteError(ts, line); err != nil {
		logger.Error("daily_error_write_failed", "err", err)
	}
}

func boolPtr(b bool) *bool { return &b }

// normalizeLine strips any trailing CRLF/LF from the verbatim sentence, so
// dailyfile.Writer can append exactly one "\n" regardless of what the wire
// sent (spec.md §4.5 file-writer rules).
func normalizeLine(raw string) string {
	return strings.TrimRight(raw, "\r\n")
}
