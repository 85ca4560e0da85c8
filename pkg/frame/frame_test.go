package frame

import (
	"bytes"
	"testing"
	"time"
)

func TestFeedHappyPath(t *testing.T) {
	a := New(DefaultConfig())
	now := time.Now()

	res := a.Feed([]byte("$PNORI,4,Signature1000900001,4,20,0.20,1.00,0*2E\r\n"), now)
	if len(res.Frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(res.Frames))
	}
	want := "$PNORI,4,Signature1000900001,4,20,0.20,1.00,0*2E"
	if string(res.Frames[0].Raw) != want {
		t.Fatalf("raw mismatch: got %q want %q", res.Frames[0].Raw, want)
	}
}

func TestFeedSplitAcrossChunks(t *testing.T) {
	a := New(DefaultConfig())
	now := time.Now()

	sentence := "$PNORI,4,S1,4,20,0.20,1.00,0*2E\r\n"
	mid := len("$PNORI,4,S1,4,20,0.20,1.00,0*")

	res1 := a.Feed([]byte(sentence[:mid+1]), now)
	if len(res1.Frames) != 0 {
		t.Fatalf("expected no frames before checksum completes, got %d", len(res1.Frames))
	}

	res2 := a.Feed([]byte(sentence[mid+1:]), now)
	if len(res2.Frames) != 1 {
		t.Fatalf("expected 1 frame once checksum arrives, got %d", len(res2.Frames))
	}
	if string(res2.Frames[0].Raw) != "$PNORI,4,S1,4,20,0.20,1.00,0*2E" {
		t.Fatalf("unexpected reassembled frame: %q", res2.Frames[0].Raw)
	}
}

func TestFeedTwoFramesOneChunk(t *testing.T) {
	a := New(DefaultConfig())
	now := time.Now()

	chunk := "$PNORE,120720,093150,0000*6E\r\n$PNORE,120720,093151,0001*6E\r\n"
	res := a.Feed([]byte(chunk), now)
	if len(res.Frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(res.Frames))
	}
	if string(res.Frames[0].Raw) != "$PNORE,120720,093150,0000*6E" {
		t.Fatalf("first frame wrong: %q", res.Frames[0].Raw)
	}
	if string(res.Frames[1].Raw) != "$PNORE,120720,093151,0001*6E" {
		t.Fatalf("second frame wrong: %q", res.Frames[1].Raw)
	}
}

func TestFeedOversizeWithoutTerminatorDropped(t *testing.T) {
	a := New(DefaultConfig())
	now := time.Now()

	noise := append([]byte{'$'}, bytes.Repeat([]byte{'A'}, MaxFrameSize+1)...)
	res := a.Feed(noise, now)
	if res.DroppedOversize != 1 {
		t.Fatalf("expected exactly one FRAME_TOO_LONG discard, got %d", res.DroppedOversize)
	}
	if len(res.Frames) != 0 {
		t.Fatalf("expected no frames from an oversize run, got %d", len(res.Frames))
	}
}

func TestBinaryThresholdEntersBinaryMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BinaryThresholdBytes = 64

	a := New(cfg)
	now := time.Now()

	res := a.Feed(bytes.Repeat([]byte{0xFF}, 64), now)
	if !a.InBinaryMode() {
		t.Fatalf("expected assembler to enter binary mode at exactly the threshold")
	}
	if !res.EnteredBinary {
		t.Fatalf("expected EnteredBinary to be reported on the crossing call")
	}
}

func TestBinaryThresholdOneByteShortStaysText(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BinaryThresholdBytes = 64

	a := New(cfg)
	now := time.Now()

	a.Feed(bytes.Repeat([]byte{0xFF}, 63), now)
	if a.InBinaryMode() {
		t.Fatalf("one byte short of the threshold must not trip binary mode")
	}
}

func TestBinaryModeResyncsOnDollarAfterCRLF(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BinaryThresholdBytes = 64

	a := New(cfg)
	now := time.Now()

	a.Feed(bytes.Repeat([]byte{0xFF}, 64), now)
	if !a.InBinaryMode() {
		t.Fatalf("expected binary mode before resync")
	}

	res := a.Feed([]byte("\r\n$PNORE,120720,093150,0000*6E\r\n"), now)
	if !res.ExitedBinary {
		t.Fatalf("expected ExitedBinary once a resync anchor is found")
	}
	if a.InBinaryMode() {
		t.Fatalf("assembler should be back in text mode after resync")
	}
	if len(res.BinaryBlob) == 0 {
		t.Fatalf("expected a non-empty blob of everything preceding the resync anchor")
	}
}

func TestBinaryModeResyncsOnBareDollarNoCRLF(t *testing.T) {
	a := New(DefaultConfig())
	now := time.Now()

	a.Feed(bytes.Repeat([]byte{0xFF}, 2048), now)
	if !a.InBinaryMode() {
		t.Fatalf("expected binary mode after the 2048-byte burst")
	}

	sentence := "$PNORI,4,S1,4,20,0.20,1.00,0*2E\r\n"
	res := a.Feed([]byte(sentence), now)
	if !res.ExitedBinary {
		t.Fatalf("a bare '$' with no preceding CRLF must still trigger resync")
	}
	if len(res.BinaryBlob) != 2048 {
		t.Fatalf("expected the blob to hold exactly the 2048 buffered bytes, got %d", len(res.BinaryBlob))
	}
	if a.InBinaryMode() {
		t.Fatalf("assembler should be back in text mode after resync")
	}

	res2 := a.Feed(nil, now)
	if len(res2.Frames) != 1 {
		t.Fatalf("expected the carried-over sentence to parse into 1 frame, got %d", len(res2.Frames))
	}
	if string(res2.Frames[0].Raw) != "$PNORI,4,S1,4,20,0.20,1.00,0*2E" {
		t.Fatalf("unexpected recovered frame: %q", res2.Frames[0].Raw)
	}
}

func TestFlushBinaryOnQuietTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BinaryThresholdBytes = 8
	cfg.BinaryQuietInterval = 10 * time.Millisecond

	a := New(cfg)
	t0 := time.Now()
	a.Feed(bytes.Repeat([]byte{0xFF}, 8), t0)
	if !a.InBinaryMode() {
		t.Fatalf("expected binary mode")
	}

	if a.Quiet(t0) {
		t.Fatalf("should not be quiet immediately")
	}
	later := t0.Add(20 * time.Millisecond)
	if !a.Quiet(later) {
		t.Fatalf("expected quiet after the configured interval elapsed")
	}

	blob := a.FlushBinary()
	if len(blob) != 8 {
		t.Fatalf("expected flush to return the 8 buffered bytes, got %d", len(blob))
	}
	if a.InBinaryMode() {
		t.Fatalf("FlushBinary must return the assembler to text mode")
	}
}

func TestResetDiscardsCarryOverAndBinaryState(t *testing.T) {
	a := New(DefaultConfig())
	now := time.Now()

	a.Feed([]byte("$PNORI,4,S1"), now) // incomplete, left as carry-over
	a.Reset()

	res := a.Feed([]byte("nature1000900001,4,20,0.20,1.00,0*2E\r\n"), now)
	if len(res.Frames) != 0 {
		t.Fatalf("post-reconnect glued bytes must not assemble into a frame, got %d frames", len(res.Frames))
	}
}
