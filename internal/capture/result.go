package capture

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// RunResult is the outcome of a bootstrap run.
type RunResult struct {
	// Fragments are the word modules, in load order.
	Fragments [][]byte `cbor:"1,keyasint"`

	// Image holds memory bytes [Start, Start+len(Image)).
	Image []byte `cbor:"2,keyasint"`

	// Start is the dictionary pointer before the run.
	Start uint32 `cbor:"3,keyasint"`

	// Latest is the dictionary head after the run.
	Latest uint32 `cbor:"4,keyasint"`

	// Bye is set when the run ended by an explicit BYE rather than by
	// running out of input.
	Bye bool `cbor:"5,keyasint,omitempty"`
}

// End returns the dictionary pointer after the run.
func (res *RunResult) End() uint32 { return res.Start + uint32(len(res.Image)) }

// ReadU32 reads a little-endian word from the captured image, returning
// false if any of its bytes fall outside of it.
func (res *RunResult) ReadU32(addr uint32) (uint32, bool) {
	if addr < res.Start || uint64(addr)+4 > uint64(res.End()) {
		return 0, false
	}
	off := addr - res.Start
	return binary.LittleEndian.Uint32(res.Image[off : off+4]), true
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor enc mode: %v", err))
	}
	encMode = em
}

// MarshalBinary encodes res as canonical CBOR; equal results encode to
// equal bytes.
func (res *RunResult) MarshalBinary() ([]byte, error) {
	type plain RunResult
	return encMode.Marshal((*plain)(res))
}

// UnmarshalBinary decodes CBOR produced by MarshalBinary.
func (res *RunResult) UnmarshalBinary(b []byte) error {
	type plain RunResult
	var tmp plain
	if err := cbor.Unmarshal(b, &tmp); err != nil {
		return fmt.Errorf("decoding run result: %w", err)
	}
	*res = RunResult(tmp)
	return nil
}

// Save writes res to the named file.
func Save(name string, res *RunResult) error {
	b, err := res.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(name, b, 0o644); err != nil {
		return fmt.Errorf("saving run result: %w", err)
	}
	return nil
}

// Load reads a run result previously written by Save.
func Load(name string) (*RunResult, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("loading run result: %w", err)
	}
	var res RunResult
	if err := res.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("%v: %w", filepath.Base(name), err)
	}
	return &res, nil
}
