// Package capture records what a bootstrap run of the core produces: the
// word modules handed to the load import, and the dictionary image grown
// past the core's initial dictionary pointer.
package capture

// Store accumulates word modules in the order the core loads them.
type Store struct {
	fragments [][]byte
}

// Add copies b into the store, returning its zero-based word index.
func (st *Store) Add(b []byte) int {
	st.fragments = append(st.fragments, append([]byte(nil), b...))
	return len(st.fragments) - 1
}

// Len returns the number of stored words.
func (st *Store) Len() int { return len(st.fragments) }

// Fragments returns the stored words in load order.
func (st *Store) Fragments() [][]byte { return st.fragments }

// Result seals the store into a RunResult, taking image as the bytes grown
// past start.
func (st *Store) Result(image []byte, start, latest uint32, bye bool) *RunResult {
	return &RunResult{
		Fragments: st.fragments,
		Image:     image,
		Start:     start,
		Latest:    latest,
		Bye:       bye,
	}
}
