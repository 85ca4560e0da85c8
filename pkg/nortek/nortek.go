// Package nortek decodes the field catalogue of each of the 21 Nortek
// PNORx sentence prefixes the recorder understands. Rather than 21 bespoke
// Go struct types, one generic Record plus a per-prefix FieldSpec table
// drives both positional and tagged (TAG=VALUE) parsing, sentinel
// detection, and range validation — the field catalogue itself is vendor
// reference data external to this repository (spec.md §1), so the
// defaults below are this module's own reasonable approximation of it.
package nortek

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrorKind classifies why a sentence's fields failed validation.
type ErrorKind string

const (
	ErrFieldCount     ErrorKind = "FIELD_COUNT"
	ErrMissingField   ErrorKind = "MISSING_FIELD"
	ErrUnknownTag     ErrorKind = "UNKNOWN_TAG"
	ErrDuplicateTag   ErrorKind = "DUPLICATE_TAG"
	ErrRangeViolation ErrorKind = "RANGE_VIOLATION"
	ErrDecodeError    ErrorKind = "DECODE_ERROR"
)

// ParseError describes a single field-level validation failure.
type ParseError struct {
	Kind    ErrorKind
	Field   string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
}

// FieldType is the decoded Go type a field catalogue entry maps to.
type FieldType int

const (
	TypeString FieldType = iota
	TypeInt
	TypeFloat
)

// FieldSpec describes one field in a prefix's catalogue.
type FieldSpec struct {
	Name     string
	Tag      string // TAG=VALUE abbreviation for tagged variants; defaults to Name when empty
	Type     FieldType
	Min, Max float64 // only enforced when HasRange is true
	HasRange bool
	Sentinel bool // apply the shared INVALID-sentinel rule (OQ1)
	Array    bool // remaining fields all belong to this one variable-length array entry
}

func (fs FieldSpec) tag() string {
	if fs.Tag != "" {
		return fs.Tag
	}
	return fs.Name
}

// Layout is a prefix's field catalogue and framing mode.
type Layout struct {
	Prefix   string
	Tagged   bool // TAG=VALUE fields instead of positional
	Fields   []FieldSpec
	Compound bool // this prefix's data spans multiple physical sentences (PNORF, PNORWD)
}

// sentinelPattern matches every INVALID marker Nortek instruments use in
// place of a real numeric reading: "-9" padded with trailing zeros and/or
// trailing decimal zeros (-9, -90, -900, -9.0, -9.00, -90.00 and so on),
// plus the two fixed forms -999 and -9999; other runs of nines (-99,
// -99999) are not matched.
var sentinelPattern = regexp.MustCompile(`^-9(0*(\.0+)?|99|999)$`)

// IsSentinelString reports whether the raw field text is a known INVALID
// marker, checked before numeric parsing so formatting differences
// ("-9" vs "-9.0" vs "-900") don't matter.
func IsSentinelString(raw string) bool {
	return sentinelPattern.MatchString(strings.TrimSpace(raw))
}

// ValidHeadID validates the head-id field shared by several prefixes:
// alphanumeric, hyphen and underscore, up to cfg.HeadIDMaxLen bytes (OQ3).
func ValidHeadID(s string, maxLen int) bool {
	if s == "" || len(s) > maxLen {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// Config carries the parser-tunable knobs from pkg/config.
type Config struct {
	HeadIDMaxLen int
}

// Record is the decoded, validated field catalogue of one sentence.
type Record struct {
	Prefix string
	Fields map[string]interface{}
}

// Parse decodes fields (the sentence's comma-separated data fields, with
// the leading "$PREFIX" and trailing "*HH" already stripped) against the
// prefix's Layout. It returns either a Record or the first ParseError
// encountered — the recorder stores one ParseError per rejected sentence,
// not an aggregate.
func Parse(layout Layout, fields []string, cfg Config) (*Record, *ParseError) {
	if layout.Tagged {
		return parseTagged(layout, fields, cfg)
	}
	return parsePositional(layout, fields, cfg)
}

func parsePositional(layout Layout, fields []string, cfg Config) (*Record, *ParseError) {
	out := map[string]interface{}{}

	arrayIdx := -1
	for i, fs := range layout.Fields {
		if fs.Array {
			arrayIdx = i
			break
		}
	}

	fixedCount := len(layout.Fields)
	if arrayIdx >= 0 {
		fixedCount = arrayIdx
		if len(fields) < fixedCount {
			return nil, &ParseError{Kind: ErrFieldCount, Field: layout.Prefix,
				Message: fmt.Sprintf("expected at least %d fields, got %d", fixedCount, len(fields))}
		}
	} else if len(fields) != fixedCount {
		return nil, &ParseError{Kind: ErrFieldCount, Field: layout.Prefix,
			Message: fmt.Sprintf("expected %d fields, got %d", fixedCount, len(fields))}
	}

	for i := 0; i < fixedCount; i++ {
		fs := layout.Fields[i]
		raw := fields[i]
		v, perr := decodeField(fs, raw, cfg)
		if perr != nil {
			return nil, perr
		}
		out[fs.Name] = v
	}

	if arrayIdx >= 0 {
		fs := layout.Fields[arrayIdx]
		rest := fields[fixedCount:]
		arr := make([]interface{}, 0, len(rest))
		for _, raw := range rest {
			v, perr := decodeField(FieldSpec{Name: fs.Name, Type: fs.Type, Sentinel: fs.Sentinel, HasRange: fs.HasRange, Min: fs.Min, Max: fs.Max}, raw, cfg)
			if perr != nil {
				return nil, perr
			}
			arr = append(arr, v)
		}
		out[fs.Name] = arr
	}

	return &Record{Prefix: layout.Prefix, Fields: out}, nil
}

func parseTagged(layout Layout, fields []string, cfg Config) (*Record, *ParseError) {
	byTag := map[string]FieldSpec{}
	for _, fs := range layout.Fields {
		byTag[fs.tag()] = fs
	}

	out := map[string]interface{}{}
	seen := map[string]bool{}

	for _, raw := range fields {
		if raw == "" {
			continue // lawful "not applicable" field (spec.md §6)
		}
		eq := strings.IndexByte(raw, '=')
		if eq < 0 {
			return nil, &ParseError{Kind: ErrDecodeError, Field: layout.Prefix,
				Message: fmt.Sprintf("field %q is not TAG=VALUE", raw)}
		}
		tag := strings.TrimSpace(raw[:eq])
		val := raw[eq+1:]

		fs, ok := byTag[tag]
		if !ok {
			return nil, &ParseError{Kind: ErrUnknownTag, Field: tag, Message: "tag not in catalogue for " + layout.Prefix}
		}
		if seen[fs.Name] {
			return nil, &ParseError{Kind: ErrDuplicateTag, Field: tag, Message: "tag appears more than once"}
		}
		seen[fs.Name] = true

		v, perr := decodeField(fs, val, cfg)
		if perr != nil {
			return nil, perr
		}
		out[fs.Name] = v
	}

	for _, fs := range layout.Fields {
		if !seen[fs.Name] {
			return nil, &ParseError{Kind: ErrMissingField, Field: fs.Name, Message: "required tag " + fs.tag() + " absent"}
		}
	}

	return &Record{Prefix: layout.Prefix, Fields: out}, nil
}

func decodeField(fs FieldSpec, raw string, cfg Config) (interface{}, *ParseError) {
	raw = strings.TrimSpace(raw)

	if fs.Name == "head_id" {
		if !ValidHeadID(raw, cfg.HeadIDMaxLen) {
			return nil, &ParseError{Kind: ErrRangeViolation, Field: fs.Name,
				Message: fmt.Sprintf("head id %q invalid or exceeds %d bytes", raw, cfg.HeadIDMaxLen)}
		}
		return raw, nil
	}

	if fs.Sentinel && IsSentinelString(raw) {
		return nil, nil // represents INVALID; stored as a null field value
	}

	switch fs.Type {
	case TypeString:
		return raw, nil
	case TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, &ParseError{Kind: ErrDecodeError, Field: fs.Name, Message: err.Error()}
		}
		if fs.HasRange && (float64(n) < fs.Min || float64(n) > fs.Max) {
			return nil, &ParseError{Kind: ErrRangeViolation, Field: fs.Name,
				Message: fmt.Sprintf("%d outside [%g, %g]", n, fs.Min, fs.Max)}
		}
		return n, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, &ParseError{Kind: ErrDecodeError, Field: fs.Name, Message: err.Error()}
		}
		if fs.HasRange && (f < fs.Min || f > fs.Max) {
			return nil, &ParseError{Kind: ErrRangeViolation, Field: fs.Name,
				Message: fmt.Sprintf("%g outside [%g, %g]", f, fs.Min, fs.Max)}
		}
		return f, nil
	default:
		return nil, &ParseError{Kind: ErrDecodeError, Field: fs.Name, Message: "unknown field type"}
	}
}
