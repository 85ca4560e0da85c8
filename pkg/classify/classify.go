// Package classify turns a raw frame.Frame into a checksum-verified,
// prefix-dispatched sentence ready for pkg/nortek parsing or rejection.
package classify

import (
	"errors"
	"strconv"
	"strings"

	"adcprecorder/pkg/frame"
	"adcprecorder/pkg/nortek"
)

// Outcome is the tagged result of classifying one frame.
type Outcome int

const (
	// OutcomeParsed means the sentence checksummed, matched a known prefix,
	// and every field decoded cleanly.
	OutcomeParsed Outcome = iota
	// OutcomeChecksumMismatch means the trailing *HH didn't match the
	// computed XOR of the sentence body.
	OutcomeChecksumMismatch
	// OutcomeUnknownPrefix means the sentence checksummed but its prefix
	// isn't in nortek.Registry.
	OutcomeUnknownPrefix
	// OutcomeParseError means the prefix was recognized but its fields
	// failed the catalogue's validation.
	OutcomeParseError
	// OutcomeMalformed means the sentence didn't even have the minimal
	// "$PREFIX,...*HH" shape to extract a checksum from.
	OutcomeMalformed
)

// Result is the full classification of one frame, whichever Outcome it hit.
type Result struct {
	Outcome    Outcome
	Prefix     string
	Record     *nortek.Record
	ParseError *nortek.ParseError
	Raw        []byte
}

var errNoChecksumDelim = errors.New("classify: no '*' checksum delimiter")

// Classify verifies f's checksum, extracts its prefix, and dispatches to the
// matching nortek.Layout parser.
func Classify(f frame.Frame, cfg nortek.Config) Result {
	res := Result{Raw: f.Raw}

	body, sum, err := splitChecksum(f.Raw)
	if err != nil {
		res.Outcome = OutcomeMalformed
		return res
	}
	if !verifyChecksum(body, sum) {
		if i := strings.IndexByte(body, ','); i > 0 {
			res.Prefix = body[:i]
		}
		res.Outcome = OutcomeChecksumMismatch
		return res
	}

	trimmed := strings.TrimPrefix(body, "$")
	parts := strings.Split(trimmed, ",")
	if len(parts) == 0 || parts[0] == "" {
		res.Outcome = OutcomeMalformed
		return res
	}
	prefix := parts[0]
	res.Prefix = prefix

	layout, ok := nortek.Registry[prefix]
	if !ok {
		res.Outcome = OutcomeUnknownPrefix
		return res
	}

	rec, perr := nortek.Parse(layout, parts[1:], cfg)
	if perr != nil {
		res.Outcome = OutcomeParseError
		res.ParseError = perr
		return res
	}

	res.Outcome = OutcomeParsed
	res.Record = rec
	return res
}

// splitChecksum separates "$BODY*HH\r\n" into BODY (without '$' or '*') and
// the two-hex-digit checksum value, trimming the trailing CRLF.
func splitChecksum(raw []byte) (body string, sum byte, err error) {
	s := strings.TrimRight(string(raw), "\r\n")
	star := strings.LastIndexByte(s, '*')
	if star < 0 || star+3 > len(s) {
		return "", 0, errNoChecksumDelim
	}
	hex := s[star+1 : star+3]
	n, perr := strconv.ParseUint(hex, 16, 8)
	if perr != nil {
		return "", 0, perr
	}
	return strings.TrimPrefix(s[:star], "$"), byte(n), nil
}

// verifyChecksum recomputes the XOR of every byte in body (the sentence
// with leading '$' and trailing "*HH" already stripped) and compares it to
// the sentence's declared checksum.
func verifyChecksum(body string, want byte) bool {
	var got byte
	for i := 0; i < len(body); i++ {
		got ^= body[i]
	}
	return got == want
}
