package store

import (
	"encoding/json"
	"time"

	"adcprecorder/pkg/logger"
)

// RawStatus is a RawLine's classification outcome (spec.md §3).
type RawStatus string

const (
	RawPending RawStatus = "PENDING"
	RawOK      RawStatus = "OK"
	RawFail    RawStatus = "FAIL"
)

// RawLine is the unclassified text of one complete sentence as it arrived
// off the wire, persisted before classification so nothing is lost if the
// parser dispatch itself misbehaves. Status starts PENDING and is updated
// in place once classification completes (spec.md §3, §4.5).
type RawLine struct {
	ID            uint64    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Raw           string    `json:"raw"`
	Status        RawStatus `json:"status"`
	Prefix        string    `json:"prefix,omitempty"`
	ChecksumValid *bool     `json:"checksum_valid,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
}

// ParsedRecord is a successfully classified and validated sentence. Fields
// holds the decoded field catalogue for the sentence's prefix; a generic
// map is used instead of 21 bespoke structs so one storage path serves
// every Nortek variant (see pkg/nortek for the typed field catalogue each
// prefix decodes into before being flattened here).
type ParsedRecord struct {
	ID        uint64                 `json:"id"`
	Prefix    string                 `json:"prefix"`
	Timestamp time.Time              `json:"timestamp"`
	Raw       string                 `json:"raw"`
	Fields    map[string]interface{} `json:"fields"`
}

// ParseError is a sentence that failed checksum, prefix lookup, or field
// validation. Kind is one of the error-kind strings pkg/nortek and
// pkg/consumer produce (FIELD_COUNT, MISSING_FIELD, UNKNOWN_TAG,
// DUPLICATE_TAG, RANGE_VIOLATION, DECODE_ERROR, CHECKSUM_MISMATCH,
// BAD_CHECKSUM_FORMAT, UNKNOWN_PREFIX).
type ParseError struct {
	ID        uint64    `json:"id"`
	Prefix    string    `json:"prefix,omitempty"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	Raw       string    `json:"raw"`
}

// PutRawLine persists a RawLine in PENDING status and returns its assigned
// ID. Callers update it to OK or FAIL via UpdateRawLineStatus once
// classification completes (spec.md §3: PENDING is transitional only).
func PutRawLine(raw string, ts time.Time) (uint64, error) {
	ts = ts.UTC() // spec.md §6: all timestamps are stored in UTC
	s := nextRawSeq()
	rl := RawLine{ID: s, Timestamp: ts, Raw: raw, Status: RawPending}
	b, err := json.Marshal(rl)
	if err != nil {
		return 0, err
	}
	key := rawKey(ts.UnixNano(), s)
	if err := SaveKey(key, b); err != nil {
		return 0, err
	}
	return s, nil
}

// UpdateRawLineStatus rewrites the RawLine identified by (ts, id) with its
// final classification outcome. ts and id must be the exact values
// PutRawLine was called/returned with, since they address the same key.
func UpdateRawLineStatus(id uint64, ts time.Time, status RawStatus, prefix string, checksumValid *bool, errMsg string) error {
	ts = ts.UTC()
	rl := RawLine{ID: id, Timestamp: ts, Status: status, Prefix: prefix, ChecksumValid: checksumValid, ErrorMessage: errMsg}
	key := rawKey(ts.UnixNano(), id)
	existing, err := GetKey(key)
	if err != nil {
		return err
	}
	var prior RawLine
	if jerr := json.Unmarshal([]byte(existing), &prior); jerr == nil {
		rl.Raw = prior.Raw
	}
	b, err := json.Marshal(rl)
	if err != nil {
		return err
	}
	return SaveKey(key, b)
}

// PutParsedRecord persists a ParsedRecord under its prefix's key namespace,
// drawing its id from that prefix's own sequence rather than a shared one.
func PutParsedRecord(prefix string, raw string, fields map[string]interface{}, ts time.Time) (uint64, error) {
	ts = ts.UTC()
	s := nextRecSeq(prefix)
	pr := ParsedRecord{ID: s, Prefix: prefix, Timestamp: ts, Raw: raw, Fields: fields}
	b, err := json.Marshal(pr)
	if err != nil {
		return 0, err
	}
	key := recKey(prefix, ts.UnixNano(), s)
	if err := SaveKey(key, b); err != nil {
		return 0, err
	}
	logger.Debug("record_persisted", "prefix", prefix, "id", s)
	return s, nil
}

// PutParseError persists a ParseError.
func PutParseError(prefix, kind, reason, raw string, ts time.Time) (uint64, error) {
	ts = ts.UTC()
	s := nextErrSeq()
	pe := ParseError{ID: s, Prefix: prefix, Kind: kind, Reason: reason, Timestamp: ts, Raw: raw}
	b, err := json.Marshal(pe)
	if err != nil {
		return 0, err
	}
	key := errKey(ts.UnixNano(), s)
	if err := SaveKey(key, b); err != nil {
		return 0, err
	}
	logger.Warn("parse_error_persisted", "prefix", prefix, "kind", kind, "id", s)
	return s, nil
}

// ListParsedRecords returns every persisted ParsedRecord for the given
// prefix, oldest first. Intended for tests and operator inspection, not
// the hot ingestion path.
func ListParsedRecords(prefix string) ([]ParsedRecord, error) {
	var out []ParsedRecord
	err := scanPrefix([]byte(recPrefixScan(prefix)), func(_, value []byte) bool {
		var pr ParsedRecord
		if jsonErr := json.Unmarshal(value, &pr); jsonErr == nil {
			out = append(out, pr)
		}
		return true
	})
	return out, err
}

// ListParseErrors returns every persisted ParseError, oldest first.
func ListParseErrors() ([]ParseError, error) {
	var out []ParseError
	err := scanPrefix([]byte(errPrefix), func(_, value []byte) bool {
		var pe ParseError
		if jsonErr := json.Unmarshal(value, &pe); jsonErr == nil {
			out = append(out, pe)
		}
		return true
	})
	return out, err
}

// ListRawLines returns every persisted RawLine, oldest first.
func ListRawLines() ([]RawLine, error) {
	var out []RawLine
	err := scanPrefix([]byte(rawPrefix), func(_, value []byte) bool {
		var rl RawLine
		if jsonErr := json.Unmarshal(value, &rl); jsonErr == nil {
			out = append(out, rl)
		}
		return true
	})
	return out, err
}
