// Package link merges the word modules captured by a bootstrap run, and its
// dictionary image, back into the core module.
package link

import (
	"context"
	"fmt"

	"github.com/go-interpreter/wagon/wasm"

	"github.com/jcorbin/waforthc/internal/capture"
	"github.com/jcorbin/waforthc/internal/wasmir"
)

// ShapeError reports a word module, or a merged table, that does not have
// the shape the merge requires.
type ShapeError struct {
	Word    int // -1 for problems with the merged table
	Problem string
}

func (err ShapeError) Error() string {
	if err.Word < 0 {
		return fmt.Sprintf("table: %v", err.Problem)
	}
	return fmt.Sprintf("word #%v: %v", err.Word, err.Problem)
}

func shapef(word int, mess string, args ...interface{}) ShapeError {
	return ShapeError{word, fmt.Sprintf(mess, args...)}
}

// Options configures Merge.
type Options struct {
	// Here and Latest name the core's dictionary pointer and head globals.
	Here   string
	Latest string

	Logf func(mess string, args ...interface{})
}

// Word describes one merged word.
type Word struct {
	Index int    `yaml:"index"`
	Name  string `yaml:"name"`
	Func  uint32 `yaml:"func"`
	Slot  uint32 `yaml:"slot"`
	Size  int    `yaml:"size"`
}

// Linked is the outcome of Merge.
type Linked struct {
	*wasmir.Module
	Words []Word

	// TableBefore and TableAfter are the table's declared initial size
	// before and after merging.
	TableBefore uint32
	TableAfter  uint32
}

type merger struct {
	Options
	v     *wasmir.Validator
	mod   *wasmir.Module
	names map[uint32]string
	syms  *symbols
	out   *Linked
}

// Merge decodes a fresh copy of core and links res into it, producing a
// module that starts with the dictionary, and table, that res captured.
func Merge(ctx context.Context, core []byte, res *capture.RunResult, opts Options) (*Linked, error) {
	if opts.Here == "" {
		opts.Here = "here"
	}
	if opts.Latest == "" {
		opts.Latest = "latest"
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...interface{}) {}
	}

	v := wasmir.NewValidator(ctx)
	defer v.Close(ctx)

	mod, err := v.Read(ctx, "core", core)
	if err != nil {
		return nil, err
	}
	m := merger{Options: opts, v: v, mod: mod}
	if err := m.merge(ctx, res); err != nil {
		return nil, err
	}

	b, err := mod.Encode()
	if err != nil {
		return nil, err
	}
	if err := v.Validate(ctx, "merged", b); err != nil {
		return nil, err
	}
	return m.out, nil
}

func (m *merger) merge(ctx context.Context, res *capture.RunResult) error {
	if m.mod.Table == nil || len(m.mod.Table.Entries) == 0 {
		return shapef(-1, "core defines no table")
	}
	here, err := m.mod.DefinedGlobal(m.Here)
	if err != nil {
		return err
	}
	latest, err := m.mod.DefinedGlobal(m.Latest)
	if err != nil {
		return err
	}

	if len(res.Image) > 0 {
		m.mod.AppendData(int32(res.Start), res.Image)
		m.Logf("data @%v+%v", res.Start, len(res.Image))
	}
	here.Init = wasmir.I32Const(int32(res.End()))
	latest.Init = wasmir.I32Const(int32(res.Latest))
	m.Logf("init %v=%v %v=%v", m.Here, res.End(), m.Latest, res.Latest)

	table := &m.mod.Table.Entries[0]
	m.out = &Linked{
		Module:      m.mod,
		TableBefore: table.Limits.Initial,
		TableAfter:  table.Limits.Initial + uint32(len(res.Fragments)),
	}
	if len(res.Fragments) == 0 {
		return nil
	}

	if m.names, err = m.mod.FuncNames(); err != nil {
		return err
	}
	m.syms = newSymbols(m.names)
	for i, frag := range res.Fragments {
		w, err := m.word(ctx, i, frag)
		if err != nil {
			return err
		}
		m.out.Words = append(m.out.Words, w)
		m.Logf("word #%v %v func=%v slot=%v size=%v", w.Index, w.Name, w.Func, w.Slot, w.Size)
	}

	table.Limits.Initial = m.out.TableAfter
	if table.Limits.Flags&0x1 != 0 && table.Limits.Initial > table.Limits.Maximum {
		return shapef(-1, "initial size %v exceeds declared maximum %v", table.Limits.Initial, table.Limits.Maximum)
	}
	for _, w := range m.out.Words {
		if w.Slot >= table.Limits.Initial {
			return shapef(w.Index, "slot %v out of table bounds %v", w.Slot, table.Limits.Initial)
		}
	}
	return m.mod.SetFuncNames(m.names)
}

func (m *merger) word(ctx context.Context, i int, b []byte) (Word, error) {
	frag, err := m.v.Read(ctx, fmt.Sprintf("word%d.wasm", i), b)
	if err != nil {
		return Word{}, err
	}

	if n := frag.DefinedFuncs(); n != 1 {
		return Word{}, shapef(i, "defines %v functions, expected 1", n)
	}
	if frag.Elements == nil || len(frag.Elements.Entries) != 1 {
		n := 0
		if frag.Elements != nil {
			n = len(frag.Elements.Entries)
		}
		return Word{}, shapef(i, "has %v element segments, expected 1", n)
	}
	elem := frag.Elements.Entries[0]
	if len(elem.Elems) != 1 {
		return Word{}, shapef(i, "element segment has %v entries, expected 1", len(elem.Elems))
	}
	if n := frag.ImportCount(wasm.ExternalFunction); n != 0 {
		return Word{}, shapef(i, "imports %v functions", n)
	}
	if n := frag.ImportCount(wasm.ExternalGlobal); n != 0 {
		return Word{}, shapef(i, "imports %v globals", n)
	}
	if frag.Global != nil && len(frag.Global.Globals) > 0 {
		return Word{}, shapef(i, "defines %v globals", len(frag.Global.Globals))
	}
	if frag.Data != nil && len(frag.Data.Entries) > 0 {
		return Word{}, shapef(i, "has %v data segments", len(frag.Data.Entries))
	}
	if elem.Index != 0 || elem.Elems[0] != 0 {
		return Word{}, shapef(i, "element segment does not install its function into table 0")
	}
	slot, err := wasmir.EvalI32(elem.Offset)
	if err != nil {
		return Word{}, shapef(i, "element offset: %v", err)
	}
	if slot < 0 {
		return Word{}, shapef(i, "negative element offset %v", slot)
	}

	mapType := func(idx uint32) (uint32, error) {
		if int(idx) >= len(frag.Types.Entries) {
			return 0, fmt.Errorf("type index %v out of range", idx)
		}
		return m.mod.TypeIndex(frag.Types.Entries[idx]), nil
	}
	sig, err := mapType(frag.Function.Types[0])
	if err != nil {
		return Word{}, shapef(i, "%v", err)
	}
	fn := uint32(m.mod.FuncCount())
	rel := wasmir.Relocation{
		Func: func(idx uint32) (uint32, error) {
			if idx != 0 {
				return 0, fmt.Errorf("reference to function %v outside of the word", idx)
			}
			return fn, nil
		},
		Type: mapType,
	}
	body := frag.Code.Bodies[0]
	code, err := rel.Code(body.Code)
	if err != nil {
		return Word{}, shapef(i, "relocating body: %v", err)
	}
	if got := m.mod.AppendFunc(sig, wasm.FunctionBody{Locals: body.Locals, Code: code}); got != fn {
		panic(fmt.Sprintf("link: appended function %v, expected %v", got, fn))
	}
	m.mod.AppendElem(elem.Offset, fn)

	name := fmt.Sprintf("word%d", i)
	if names, err := frag.FuncNames(); err == nil && names[0] != "" {
		name = names[0]
	}
	name = m.syms.symbolicate(name, fn)
	m.names[fn] = name

	return Word{
		Index: i,
		Name:  name,
		Func:  fn,
		Slot:  uint32(slot),
		Size:  len(code),
	}, nil
}
