package dailyfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// blobSeqState tracks the zero-padded monotonic counter within a calendar
// date that spec.md §6 requires for errors_binary/YYYYMMDD_<n>.dat names.
var blobSeqState struct {
	mu   sync.Mutex
	date string
	n    int
}

// nextBlobSeq returns the next value of the per-date counter, starting at 0
// for the first blob of a new date (spec.md §3 example:
// "errors_binary/YYYYMMDD_000.dat" for the first capture of the day).
func nextBlobSeq(date string) int {
	blobSeqState.mu.Lock()
	defer blobSeqState.mu.Unlock()
	if blobSeqState.date != date {
		blobSeqState.date = date
		blobSeqState.n = -1
	}
	blobSeqState.n++
	return blobSeqState.n
}

// WriteBinaryBlob persists a frame.Result.BinaryBlob under binaryDir
// (state.Paths.Binary) as errors_binary/YYYYMMDD_<seq>.dat, the raw bytes
// captured while the frame assembler believed the line had fallen into
// binary mode. <seq> resets to 0 on the first blob of each new local date.
func WriteBinaryBlob(binaryDir string, ts time.Time, blob []byte) (string, error) {
	date := ts.Local().Format("20060102")
	seq := nextBlobSeq(date)
	name := fmt.Sprintf("%s_%03d.dat", date, seq)
	path := filepath.Join(binaryDir, name)

	if err := os.WriteFile(path, blob, 0o640); err != nil {
		return "", fmt.Errorf("dailyfile: write binary blob %s: %w", path, err)
	}
	return path, nil
}
