package fileinput

import (
	"bytes"
	"fmt"
)

// Location names a line in an Input file.
type Location struct {
	Name string
	Line int
}

// Line combines a Location with the bytes handed out from it.
type Line struct {
	Location
	Text []byte
}

func (loc Location) String() string { return fmt.Sprintf("%v:%v", loc.Name, loc.Line) }
func (il Line) String() string      { return fmt.Sprintf("%v %q", il.Location, il.Text) }

// Input is a line cursor over an immutable, pre-loaded source buffer. Both
// the next and last read lines are tracked to facilitate user feedback.
type Input struct {
	src  []byte
	off  int
	Scan Location
	Last Line
}

// New creates an Input positioned at the start of src.
func New(name string, src []byte) *Input {
	return &Input{
		src:  src,
		Scan: Location{Name: name, Line: 1},
	}
}

// ReadLine copies the next line, or as much of it as fits, into p. A copied
// line feed is consumed along with the line; a line cut short by len(p)
// continues on the next call. Returns 0 once the source is exhausted.
func (in *Input) ReadLine(p []byte) int {
	rest := in.src[in.off:]
	if len(rest) == 0 || len(p) == 0 {
		return 0
	}
	if len(rest) > len(p) {
		rest = rest[:len(p)]
	}
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i+1]
	}
	n := copy(p, rest)
	in.off += n

	in.Last.Location = in.Scan
	in.Last.Text = append(in.Last.Text[:0], bytes.TrimSuffix(rest, []byte{'\n'})...)
	if rest[n-1] == '\n' {
		in.Scan.Line++
	}
	return n
}

// Offset returns how many source bytes have been consumed so far.
func (in *Input) Offset() int { return in.off }
