package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_symbols(t *testing.T) {
	sym := newSymbols(map[uint32]string{4: "run", 5: "dup"})
	assert.Equal(t, "swap", sym.symbolicate("swap", 7))
	assert.Equal(t, "dup.2", sym.symbolicate("dup", 8))
	assert.Equal(t, "dup.3", sym.symbolicate("dup", 9))
	assert.Equal(t, map[string]uint32{
		"run":   4,
		"dup":   5,
		"swap":  7,
		"dup.2": 8,
		"dup.3": 9,
	}, sym.symbols)
}
