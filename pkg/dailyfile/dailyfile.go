// Package dailyfile writes the per-type plain-text daily logs alongside the
// embedded database: one append-only file per (prefix, calendar day) plus
// one ERRORS file per day for rejected sentences, so the instrument record
// is still human-readable without querying the store.
package dailyfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const errorsFileStem = "ERRORS"

// Writer caches one open *os.File per (prefix, date) key and rotates to a
// new file on the first write whose local calendar date differs from the
// cached one.
type Writer struct {
	mu   sync.Mutex
	dir  string
	open map[string]*openFile
}

type openFile struct {
	f    *os.File
	date string
}

// New creates a Writer rooted at dir (state.Paths.Daily).
func New(dir string) *Writer {
	return &Writer{dir: dir, open: map[string]*openFile{}}
}

// WriteRecord appends line (without a trailing newline) to the daily file
// for prefix on the calendar day of ts.
func (w *Writer) WriteRecord(prefix string, ts time.Time, line string) error {
	return w.append(prefix, ts, line)
}

// WriteError appends line to the shared ERRORS daily file.
func (w *Writer) WriteError(ts time.Time, line string) error {
	return w.append(errorsFileStem, ts, line)
}

func (w *Writer) append(stem string, ts time.Time, line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// spec.md §4.5/§8: daily files rotate on the local calendar date, not
	// UTC — the device's own timestamp is opaque payload, but the file
	// rotation boundary is the host's wall clock.
	date := ts.Local().Format("2006_01_02")
	of, ok := w.open[stem]
	if !ok || of.date != date {
		if ok {
			_ = of.f.Close()
		}
		path := filepath.Join(w.dir, fmt.Sprintf("%s_%s.dat", stem, date))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return fmt.Errorf("dailyfile: open %s: %w", path, err)
		}
		of = &openFile{f: f, date: date}
		w.open[stem] = of
	}

	if _, err := of.f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("dailyfile: write %s: %w", stem, err)
	}
	return nil
}

// Close closes every currently-open file handle.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var first error
	for stem, of := range w.open {
		if err := of.f.Close(); err != nil && first == nil {
			first = err
		}
		delete(w.open, stem)
	}
	return first
}
