package wasmir

import (
	"fmt"

	"github.com/go-interpreter/wagon/wasm"
)

// ImportCount returns how many imports of the given kind the module declares.
func (mod *Module) ImportCount(kind wasm.External) (n int) {
	if mod.Import == nil {
		return 0
	}
	for _, imp := range mod.Import.Entries {
		if imp.Type.Kind() == kind {
			n++
		}
	}
	return n
}

// FuncCount returns the size of the function index space.
func (mod *Module) FuncCount() int {
	n := mod.ImportCount(wasm.ExternalFunction)
	if mod.Function != nil {
		n += len(mod.Function.Types)
	}
	return n
}

// DefinedFuncs returns the number of functions defined (not imported) by the module.
func (mod *Module) DefinedFuncs() int {
	if mod.Function == nil {
		return 0
	}
	return len(mod.Function.Types)
}

// Export returns the named export if it exists with the given kind.
func (mod *Module) Export(name string, kind wasm.External) (wasm.ExportEntry, bool) {
	if mod.Module.Export == nil {
		return wasm.ExportEntry{}, false
	}
	ent, ok := mod.Module.Export.Entries[name]
	if !ok || ent.Kind != kind {
		return wasm.ExportEntry{}, false
	}
	return ent, true
}

// ExportOf returns the name of the first export of the given kind and index;
// map iteration order is not stable, so ties break by name.
func (mod *Module) ExportOf(kind wasm.External, index uint32) (name string, ok bool) {
	if mod.Module.Export == nil {
		return "", false
	}
	for n, ent := range mod.Module.Export.Entries {
		if ent.Kind == kind && ent.Index == index && (!ok || n < name) {
			name, ok = n, true
		}
	}
	return name, ok
}

// DefinedGlobal resolves an exported global to its definition, which must be
// local to the module (not imported).
func (mod *Module) DefinedGlobal(exportName string) (*wasm.GlobalEntry, error) {
	ent, ok := mod.Export(exportName, wasm.ExternalGlobal)
	if !ok {
		return nil, fmt.Errorf("%v: no exported global %q", mod.Name, exportName)
	}
	i := int(ent.Index) - mod.ImportCount(wasm.ExternalGlobal)
	if i < 0 {
		return nil, fmt.Errorf("%v: exported global %q is imported", mod.Name, exportName)
	}
	if mod.Global == nil || i >= len(mod.Global.Globals) {
		return nil, fmt.Errorf("%v: exported global %q index %v out of range", mod.Name, exportName, ent.Index)
	}
	return &mod.Global.Globals[i], nil
}

// TypeIndex returns the index of sig in the type section, appending it if
// no equal signature exists yet.
func (mod *Module) TypeIndex(sig wasm.FunctionSig) uint32 {
	if mod.Types == nil {
		mod.Types = &wasm.SectionTypes{RawSection: wasm.RawSection{ID: wasm.SectionIDType}}
		mod.insertSection(mod.Types)
	}
	for i, have := range mod.Types.Entries {
		if sameSig(have, sig) {
			return uint32(i)
		}
	}
	mod.Types.Entries = append(mod.Types.Entries, sig)
	return uint32(len(mod.Types.Entries) - 1)
}

func sameSig(a, b wasm.FunctionSig) bool {
	if a.Form != b.Form || len(a.ParamTypes) != len(b.ParamTypes) || len(a.ReturnTypes) != len(b.ReturnTypes) {
		return false
	}
	for i := range a.ParamTypes {
		if a.ParamTypes[i] != b.ParamTypes[i] {
			return false
		}
	}
	for i := range a.ReturnTypes {
		if a.ReturnTypes[i] != b.ReturnTypes[i] {
			return false
		}
	}
	return true
}

// AppendFunc appends a function definition, returning its index in the
// function index space.
func (mod *Module) AppendFunc(typeIndex uint32, body wasm.FunctionBody) uint32 {
	if mod.Function == nil {
		mod.Function = &wasm.SectionFunctions{RawSection: wasm.RawSection{ID: wasm.SectionIDFunction}}
		mod.insertSection(mod.Function)
	}
	if mod.Code == nil {
		mod.Code = &wasm.SectionCode{RawSection: wasm.RawSection{ID: wasm.SectionIDCode}}
		mod.insertSection(mod.Code)
	}
	body.Module = mod.Module
	mod.Function.Types = append(mod.Function.Types, typeIndex)
	mod.Code.Bodies = append(mod.Code.Bodies, body)
	return uint32(mod.FuncCount() - 1)
}

// AppendData appends an active data segment for memory 0.
func (mod *Module) AppendData(offset int32, data []byte) {
	if mod.Data == nil {
		mod.Data = &wasm.SectionData{RawSection: wasm.RawSection{ID: wasm.SectionIDData}}
		mod.insertSection(mod.Data)
	}
	mod.Data.Entries = append(mod.Data.Entries, wasm.DataSegment{
		Index:  0,
		Offset: I32Const(offset),
		Data:   data,
	})
}

// AppendElem appends an active element segment for table 0.
func (mod *Module) AppendElem(offset []byte, funcs ...uint32) {
	if mod.Elements == nil {
		mod.Elements = &wasm.SectionElements{RawSection: wasm.RawSection{ID: wasm.SectionIDElement}}
		mod.insertSection(mod.Elements)
	}
	mod.Elements.Entries = append(mod.Elements.Entries, wasm.ElementSegment{
		Index:  0,
		Offset: offset,
		Elems:  funcs,
	})
}

// insertSection places a new known section after every section with a
// lower id, and before any higher one; custom sections are skipped over.
func (mod *Module) insertSection(s wasm.Section) {
	id := s.SectionID()
	at := len(mod.Sections)
	for i, have := range mod.Sections {
		if hid := have.SectionID(); hid != wasm.SectionIDCustom && hid > id {
			at = i
			break
		}
	}
	if at == len(mod.Sections) {
		for at > 0 && mod.Sections[at-1].SectionID() == wasm.SectionIDCustom {
			at--
		}
	}
	mod.Sections = append(mod.Sections, nil)
	copy(mod.Sections[at+1:], mod.Sections[at:])
	mod.Sections[at] = s
}
