package wasmir

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/go-interpreter/wagon/wasm"
	"github.com/go-interpreter/wagon/wasm/leb128"
)

const (
	nameSectionName = "name"
	nameSubsecFuncs = 1
)

type nameSubsection struct {
	id   byte
	data []byte
}

func (mod *Module) nameSection() *wasm.SectionCustom {
	for _, cs := range mod.Customs {
		if cs.Name == nameSectionName {
			return cs
		}
	}
	return nil
}

// FuncNames returns the function names recorded in the module's name section.
func (mod *Module) FuncNames() (map[uint32]string, error) {
	names := make(map[uint32]string)
	cs := mod.nameSection()
	if cs == nil {
		return names, nil
	}
	subs, err := readNameSubsections(cs.Data)
	if err != nil {
		return nil, fmt.Errorf("%v: bad name section: %w", mod.Name, err)
	}
	for _, sub := range subs {
		if sub.id != nameSubsecFuncs {
			continue
		}
		r := bytes.NewReader(sub.data)
		n, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, fmt.Errorf("%v: bad function names: %w", mod.Name, err)
		}
		for ; n > 0; n-- {
			idx, err := leb128.ReadVarUint32(r)
			if err != nil {
				return nil, fmt.Errorf("%v: bad function names: %w", mod.Name, err)
			}
			name, err := readName(r)
			if err != nil {
				return nil, fmt.Errorf("%v: bad function names: %w", mod.Name, err)
			}
			names[idx] = name
		}
	}
	return names, nil
}

// SetFuncNames replaces the function names subsection of the module's name
// section, creating the section if needed; other subsections are retained.
func (mod *Module) SetFuncNames(names map[uint32]string) error {
	cs := mod.nameSection()
	if cs == nil {
		cs = &wasm.SectionCustom{
			RawSection: wasm.RawSection{ID: wasm.SectionIDCustom},
			Name:       nameSectionName,
		}
		mod.Customs = append(mod.Customs, cs)
		mod.Sections = append(mod.Sections, cs)
	}

	subs, err := readNameSubsections(cs.Data)
	if err != nil {
		return fmt.Errorf("%v: bad name section: %w", mod.Name, err)
	}

	var funcs bytes.Buffer
	idxs := make([]uint32, 0, len(names))
	for idx := range names {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	leb128.WriteVarUint32(&funcs, uint32(len(idxs)))
	for _, idx := range idxs {
		leb128.WriteVarUint32(&funcs, idx)
		writeName(&funcs, names[idx])
	}

	var data bytes.Buffer
	written := false
	put := func(sub nameSubsection) {
		data.WriteByte(sub.id)
		leb128.WriteVarUint32(&data, uint32(len(sub.data)))
		data.Write(sub.data)
	}
	for _, sub := range subs {
		if sub.id == nameSubsecFuncs {
			continue
		}
		if !written && sub.id > nameSubsecFuncs {
			put(nameSubsection{nameSubsecFuncs, funcs.Bytes()})
			written = true
		}
		put(sub)
	}
	if !written {
		put(nameSubsection{nameSubsecFuncs, funcs.Bytes()})
	}
	cs.Data = data.Bytes()
	return nil
}

func readNameSubsections(data []byte) (subs []nameSubsection, err error) {
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		id, _ := r.ReadByte()
		size, err := leb128.ReadVarUint32(r)
		if err != nil {
			return nil, err
		}
		if int(size) > r.Len() {
			return nil, fmt.Errorf("subsection %v overruns section", id)
		}
		start := len(data) - r.Len()
		subs = append(subs, nameSubsection{id, data[start : start+int(size)]})
		r.Seek(int64(size), io.SeekCurrent)
	}
	return subs, nil
}

func readName(r *bytes.Reader) (string, error) {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", fmt.Errorf("name length %v overruns section", n)
	}
	b := make([]byte, n)
	r.Read(b)
	return string(b), nil
}

func writeName(buf *bytes.Buffer, s string) {
	leb128.WriteVarUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}
