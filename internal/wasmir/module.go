// Package wasmir is the module IR used by the compiler: binary modules are
// decoded into a mutable representation, validated against the same feature
// set the bootstrap runtime uses, and encoded back to binary.
package wasmir

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/go-interpreter/wagon/wasm"
	"github.com/go-interpreter/wagon/wasm/leb128"
)

// Module is a decoded module. It is exclusively held by whichever component
// is currently mutating it.
type Module struct {
	Name string
	*wasm.Module
}

// DecodeError reports a module that could not be decoded, along with how far
// into its bytes decoding got.
type DecodeError struct {
	Name   string
	Offset int64
	Err    error
}

func (err DecodeError) Error() string {
	return fmt.Sprintf("%v@0x%x: decode failed: %v", err.Name, err.Offset, err.Err)
}
func (err DecodeError) Unwrap() error { return err.Err }

// Decode parses the binary module b. The name is only used for error
// reporting and logging.
func Decode(name string, b []byte) (mod *Module, err error) {
	or := &offsetReader{r: bytes.NewReader(b)}
	defer func() {
		if e := recover(); e != nil {
			mod, err = nil, DecodeError{name, or.n, fmt.Errorf("%v", e)}
		}
	}()
	m, err := wasm.DecodeModule(or)
	if err != nil {
		return nil, DecodeError{name, or.n, err}
	}
	return &Module{Name: name, Module: m}, nil
}

// Encode serializes the module back into its binary form. Equal modules
// encode to equal bytes.
func (mod *Module) Encode() ([]byte, error) {
	m := *mod.Module
	m.Sections = make([]wasm.Section, len(mod.Sections))
	for i, s := range mod.Sections {
		if exports, ok := s.(*wasm.SectionExports); ok {
			s = exportSection{exports}
		}
		m.Sections[i] = s
	}
	var buf bytes.Buffer
	if err := wasm.EncodeModule(&buf, &m); err != nil {
		return nil, fmt.Errorf("%v: encode failed: %w", mod.Name, err)
	}
	return buf.Bytes(), nil
}

// exportSection writes exports ordered by kind, index, and name, rather than
// in map order.
type exportSection struct{ *wasm.SectionExports }

func (es exportSection) WritePayload(w io.Writer) error {
	ents := make([]wasm.ExportEntry, 0, len(es.Entries))
	for _, ent := range es.Entries {
		ents = append(ents, ent)
	}
	sort.Slice(ents, func(i, j int) bool {
		if ents[i].Kind != ents[j].Kind {
			return ents[i].Kind < ents[j].Kind
		}
		if ents[i].Index != ents[j].Index {
			return ents[i].Index < ents[j].Index
		}
		return ents[i].FieldStr < ents[j].FieldStr
	})
	var buf bytes.Buffer
	leb128.WriteVarUint32(&buf, uint32(len(ents)))
	for _, ent := range ents {
		leb128.WriteVarUint32(&buf, uint32(len(ent.FieldStr)))
		buf.WriteString(ent.FieldStr)
		buf.WriteByte(byte(ent.Kind))
		leb128.WriteVarUint32(&buf, ent.Index)
	}
	_, err := buf.WriteTo(w)
	return err
}

type offsetReader struct {
	r io.Reader
	n int64
}

func (or *offsetReader) Read(p []byte) (int, error) {
	n, err := or.r.Read(p)
	or.n += int64(n)
	return n, err
}
