package link

import "fmt"

// symbols tracks which function owns each name in the merged name section.
type symbols struct {
	symbols map[string]uint32
}

func newSymbols(names map[uint32]string) *symbols {
	sym := &symbols{symbols: make(map[string]uint32, len(names))}
	for fn, name := range names {
		sym.symbols[name] = fn
	}
	return sym
}

// symbolicate binds a name to fn, suffixing it with ".N" if s is already
// taken, and returns the name actually bound.
func (sym *symbols) symbolicate(s string, fn uint32) string {
	name := s
	for n := 2; ; n++ {
		if _, taken := sym.symbols[name]; !taken {
			break
		}
		name = fmt.Sprintf("%v.%v", s, n)
	}
	sym.symbols[name] = fn
	return name
}
