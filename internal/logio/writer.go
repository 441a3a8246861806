package logio

import (
	"bytes"
	"sync"
)

// Writer is an io.Writer that logs every complete line written to it
// through Logf; it lets line oriented output, like the run dump, share the
// log stream.
type Writer struct {
	Logf func(mess string, args ...interface{})

	// Prefix is prepended to every logged line.
	Prefix string

	mu      sync.Mutex
	partial []byte
}

// Write logs each completed line, holding back any trailing partial line
// until a later Write or Flush completes it. It never fails.
func (lw *Writer) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	n := len(p)
	for len(p) > 0 {
		line, rest, found := bytes.Cut(p, []byte{'\n'})
		if !found {
			lw.partial = append(lw.partial, line...)
			break
		}
		if len(lw.partial) > 0 {
			line = append(lw.partial, line...)
			lw.partial = lw.partial[:0]
		}
		lw.logLine(line)
		p = rest
	}
	return n, nil
}

// Flush logs any held back partial line.
func (lw *Writer) Flush() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if len(lw.partial) > 0 {
		lw.logLine(lw.partial)
		lw.partial = lw.partial[:0]
	}
	return nil
}

// Close calls Flush.
func (lw *Writer) Close() error { return lw.Flush() }

func (lw *Writer) logLine(line []byte) {
	lw.Logf("%v%s", lw.Prefix, bytes.TrimSuffix(line, []byte{'\r'}))
}
