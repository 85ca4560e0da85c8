package consumer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"adcprecorder/pkg/dailyfile"
	"adcprecorder/pkg/frame"
	"adcprecorder/pkg/health"
	"adcprecorder/pkg/nortek"
	"adcprecorder/pkg/producer"
	"adcprecorder/pkg/state"
	"adcprecorder/pkg/store"
)

func newTestConsumer(t *testing.T) (*Consumer, producer.Queue, state.Paths) {
	t.Helper()
	if err := store.Open(filepath.Join(t.TempDir(), "db")); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	outDir := t.TempDir()
	paths := state.PathsFor(outDir)
	for _, p := range []string{paths.Binary, paths.Daily} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", p, err)
		}
	}

	daily := dailyfile.New(paths.Daily)
	t.Cleanup(func() { _ = daily.Close() })

	queue := producer.NewQueue(8)
	h := health.New()
	c := New(queue, nortek.Config{HeadIDMaxLen: 30}, h, daily, paths)
	return c, queue, paths
}

func runConsumerUntilQueueDrains(t *testing.T, c *Consumer, queue producer.Queue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	close(queue)
	if err := c.Run(ctx); err != nil {
		t.Fatalf("consumer Run: %v", err)
	}
	cancel()
}

func TestConsumerHappyPathPersistsRawAndParsedAndDailyFile(t *testing.T) {
	c, queue, paths := newTestConsumer(t)

	ts := time.Now()
	raw := "$PNORI,4,Signature1000900001,4,20,0.20,1.00,0*1A\r\n"
	queue <- producer.Item{Frame: frame.Frame{Raw: []byte(raw), Timestamp: ts}}
	runConsumerUntilQueueDrains(t, c, queue)

	lines, err := store.ListRawLines()
	if err != nil || len(lines) != 1 {
		t.Fatalf("ListRawLines: %v, %+v", err, lines)
	}
	if lines[0].Status != store.RawOK {
		t.Fatalf("expected raw status OK, got %v", lines[0].Status)
	}

	recs, err := store.ListParsedRecords("PNORI")
	if err != nil || len(recs) != 1 {
		t.Fatalf("ListParsedRecords: %v, %+v", err, recs)
	}

	dailyPath := filepath.Join(paths.Daily, "PNORI_"+ts.Local().Format("2006_01_02")+".dat")
	b, err := os.ReadFile(dailyPath)
	if err != nil {
		t.Fatalf("expected daily file at %s: %v", dailyPath, err)
	}
	if string(b) != "$PNORI,4,Signature1000900001,4,20,0.20,1.00,0*1A\n" {
		t.Fatalf("unexpected daily file content: %q", b)
	}
}

func TestConsumerChecksumMismatchPersistsError(t *testing.T) {
	c, queue, paths := newTestConsumer(t)

	ts := time.Now()
	raw := "$PNORI,4,Signature1000900001,4,20,0.20,1.00,0*FF\r\n"
	queue <- producer.Item{Frame: frame.Frame{Raw: []byte(raw), Timestamp: ts}}
	runConsumerUntilQueueDrains(t, c, queue)

	lines, _ := store.ListRawLines()
	if len(lines) != 1 || lines[0].Status != store.RawFail {
		t.Fatalf("expected raw status FAIL, got %+v", lines)
	}
	if lines[0].ChecksumValid == nil || *lines[0].ChecksumValid {
		t.Fatalf("expected checksum_valid=false, got %v", lines[0].ChecksumValid)
	}

	errs, _ := store.ListParseErrors()
	if len(errs) != 1 || errs[0].Kind != "CHECKSUM_MISMATCH" {
		t.Fatalf("unexpected parse errors: %+v", errs)
	}

	dailyPath := filepath.Join(paths.Daily, "PNORI_"+ts.Local().Format("2006_01_02")+".dat")
	if _, err := os.Stat(dailyPath); err != nil {
		t.Fatalf("checksum failures still get appended to the daily file: %v", err)
	}
}

func TestConsumerUnknownPrefixGoesToErrorsFile(t *testing.T) {
	c, queue, paths := newTestConsumer(t)

	body := "PFOOBAR,1,2"
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	const hexdigits = "0123456789ABCDEF"
	raw := "$" + body + "*" + string([]byte{hexdigits[sum>>4], hexdigits[sum&0xF]})

	ts := time.Now()
	queue <- producer.Item{Frame: frame.Frame{Raw: []byte(raw), Timestamp: ts}}
	runConsumerUntilQueueDrains(t, c, queue)

	errs, _ := store.ListParseErrors()
	if len(errs) != 1 || errs[0].Kind != "UNKNOWN_PREFIX" {
		t.Fatalf("unexpected parse errors: %+v", errs)
	}

	errorsPath := filepath.Join(paths.Daily, "ERRORS_"+ts.Local().Format("2006_01_02")+".dat")
	if _, err := os.Stat(errorsPath); err != nil {
		t.Fatalf("expected shared ERRORS daily file: %v", err)
	}
}

func TestConsumerBinaryBlobWritesNoDatabaseRows(t *testing.T) {
	c, queue, paths := newTestConsumer(t)

	ts := time.Now()
	queue <- producer.Item{
		IsBlob: true,
		Blob:   []byte{0xFF, 0xFE, 0xFD},
		Frame:  frame.Frame{Timestamp: ts},
	}
	runConsumerUntilQueueDrains(t, c, queue)

	lines, _ := store.ListRawLines()
	if len(lines) != 0 {
		t.Fatalf("binary mode must not write raw_lines rows, got %d", len(lines))
	}
	errs, _ := store.ListParseErrors()
	if len(errs) != 0 {
		t.Fatalf("binary mode must not write parse_errors rows, got %d", len(errs))
	}

	entries, err := os.ReadDir(paths.Binary)
	if err != nil {
		t.Fatalf("read binary dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one blob file, got %d", len(entries))
	}
}
