package store

import "fmt"

// Key layout: every "table" the spec names is a key prefix in one flat
// Pebble keyspace, mirroring how the teacher namespaced threads/messages.
//
//	raw:<ts19>:<seq>                 -- RawLine, one per line read off the wire
//	rec:<PREFIX>:<ts19>:<seq>        -- ParsedRecord, one per successfully classified sentence
//	err:<ts19>:<seq>                 -- ParseError, one per rejected/invalid sentence
//	sys:<name>                       -- schema/version and other singleton keys
//
// ts19 is a zero-padded 19-digit UnixNano timestamp so lexicographic key
// order matches chronological order; seq breaks ties within a nanosecond.

const (
	rawPrefix = "raw:"
	recPrefix = "rec:"
	errPrefix = "err:"
	sysPrefix = "sys:"
)

func tsSeqSuffix(unixNano int64, s uint64) string {
	return fmt.Sprintf("%019d:%020d", unixNano, s)
}

func rawKey(unixNano int64, s uint64) string {
	return rawPrefix + tsSeqSuffix(unixNano, s)
}

func recKey(prefix string, unixNano int64, s uint64) string {
	return recPrefix + prefix + ":" + tsSeqSuffix(unixNano, s)
}

func recPrefixScan(prefix string) string {
	return recPrefix + prefix + ":"
}

func errKey(unixNano int64, s uint64) string {
	return errPrefix + tsSeqSuffix(unixNano, s)
}

func sysKey(name string) string {
	return sysPrefix + name
}
