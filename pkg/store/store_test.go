package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "db")
	if err := Open(dir); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	openTestStore(t)

	if err := EnsureSchema(); err != nil {
		t.Fatalf("first EnsureSchema: %v", err)
	}
	if err := EnsureSchema(); err != nil {
		t.Fatalf("second EnsureSchema should be a no-op, got: %v", err)
	}
}

func TestPutRawLineAndUpdateStatus(t *testing.T) {
	openTestStore(t)

	ts := time.Now()
	id, err := PutRawLine("$PNORE,120720,093150,0000*6E", ts)
	if err != nil {
		t.Fatalf("PutRawLine: %v", err)
	}

	lines, err := ListRawLines()
	if err != nil {
		t.Fatalf("ListRawLines: %v", err)
	}
	if len(lines) != 1 || lines[0].Status != RawPending {
		t.Fatalf("expected one PENDING raw line, got %+v", lines)
	}

	checksumValid := true
	if err := UpdateRawLineStatus(id, ts, RawOK, "PNORE", &checksumValid, ""); err != nil {
		t.Fatalf("UpdateRawLineStatus: %v", err)
	}

	lines, err = ListRawLines()
	if err != nil {
		t.Fatalf("ListRawLines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("update must rewrite the same row, not add one: got %d rows", len(lines))
	}
	if lines[0].Status != RawOK {
		t.Fatalf("status = %v, want OK", lines[0].Status)
	}
	if lines[0].Raw == "" {
		t.Fatalf("the original verbatim sentence must survive a status update")
	}
}

func TestPutParsedRecordListByPrefix(t *testing.T) {
	openTestStore(t)

	ts := time.Now()
	fields := map[string]interface{}{"num_beams": int64(4), "head_id": "S1"}
	if _, err := PutParsedRecord("PNORI", "$PNORI,...*2E", fields, ts); err != nil {
		t.Fatalf("PutParsedRecord: %v", err)
	}
	if _, err := PutParsedRecord("PNORE", "$PNORE,...*6E", map[string]interface{}{}, ts); err != nil {
		t.Fatalf("PutParsedRecord: %v", err)
	}

	recs, err := ListParsedRecords("PNORI")
	if err != nil {
		t.Fatalf("ListParsedRecords: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 PNORI record, got %d", len(recs))
	}
	if recs[0].Fields["head_id"] != "S1" {
		t.Errorf("head_id = %v", recs[0].Fields["head_id"])
	}
}

func TestPutParseErrorListed(t *testing.T) {
	openTestStore(t)

	ts := time.Now()
	if _, err := PutParseError("PNORI", "CHECKSUM_MISMATCH", "bad checksum", "$PNORI,...*FF", ts); err != nil {
		t.Fatalf("PutParseError: %v", err)
	}

	errs, err := ListParseErrors()
	if err != nil {
		t.Fatalf("ListParseErrors: %v", err)
	}
	if len(errs) != 1 || errs[0].Kind != "CHECKSUM_MISMATCH" {
		t.Fatalf("unexpected errors list: %+v", errs)
	}
}

func TestRawIDsAreMonotonic(t *testing.T) {
	openTestStore(t)

	ts := time.Now()
	var ids []uint64
	for i := 0; i < 5; i++ {
		id, err := PutRawLine("$PNORE,1,2,3*00", ts)
		if err != nil {
			t.Fatalf("PutRawLine: %v", err)
		}
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids must strictly increase: %v", ids)
		}
	}
}

// TestRawIDsStayGapFreeUnderInterleaving mirrors pkg/consumer.handle's real
// call pattern: every raw line is immediately followed by either a parsed
// record or a parse error sharing the database. raw_lines ids must stay
// strictly sequential (1,2,3,...) even though other tables are also
// drawing ids in between (spec.md §8).
func TestRawIDsStayGapFreeUnderInterleaving(t *testing.T) {
	openTestStore(t)

	ts := time.Now()
	var rawIDs []uint64
	for i := 0; i < 6; i++ {
		rawID, err := PutRawLine("$PNORE,1,2,3*00", ts)
		if err != nil {
			t.Fatalf("PutRawLine: %v", err)
		}
		rawIDs = append(rawIDs, rawID)

		if i%2 == 0 {
			if _, err := PutParsedRecord("PNORE", "$PNORE,1,2,3*00", map[string]interface{}{}, ts); err != nil {
				t.Fatalf("PutParsedRecord: %v", err)
			}
		} else {
			if _, err := PutParseError("PNORE", "DECODE_ERROR", "boom", "$PNORE,1,2,3*00", ts); err != nil {
				t.Fatalf("PutParseError: %v", err)
			}
		}
	}

	first := rawIDs[0]
	for i, id := range rawIDs {
		want := first + uint64(i)
		if id != want {
			t.Fatalf("raw ids must be gap-free despite interleaved writes to other tables: got %v", rawIDs)
		}
	}
}

func TestKeyValueRoundTrip(t *testing.T) {
	openTestStore(t)

	if err := SaveKey("sys:custom", []byte("value")); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	v, err := GetKey("sys:custom")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if v != "value" {
		t.Fatalf("GetKey returned %q, want %q", v, "value")
	}

	if err := DeleteKey("sys:custom"); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}
	if _, err := GetKey("sys:custom"); !IsNotFound(err) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
}
