package capture

import "fmt"

// Reader reads a 32-bit cell at addr, returning false if addr is not
// readable.
type Reader func(addr uint32) (uint32, bool)

// CycleError is returned by Dictionary when a link points back into the
// chain already walked.
type CycleError struct {
	At   uint32
	Back uint32
}

func (err CycleError) Error() string {
	return fmt.Sprintf("dictionary link @%v loops back to @%v", err.At, err.Back)
}

// Dictionary walks the linked list of dictionary entries from head, whose
// first cell links to the previous entry. Walking stops at a zero link, or
// at the first entry that read cannot reach; complete reports which.
func Dictionary(read Reader, head uint32) (chain []uint32, complete bool, err error) {
	seen := make(map[uint32]struct{})
	for addr := head; addr != 0; {
		if _, dup := seen[addr]; dup {
			return chain, false, CycleError{At: chain[len(chain)-1], Back: addr}
		}
		prev, ok := read(addr)
		if !ok {
			return chain, false, nil
		}
		seen[addr] = struct{}{}
		chain = append(chain, addr)
		addr = prev
	}
	return chain, true, nil
}
