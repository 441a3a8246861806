package bootstrap

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/jcorbin/waforthc/internal/capture"
	"github.com/jcorbin/waforthc/internal/fileinput"
	"github.com/jcorbin/waforthc/internal/flushio"
	"github.com/jcorbin/waforthc/internal/runeio"
)

// LoadError reports a word module that could not be loaded into the
// running core.
type LoadError struct {
	Word int
	Err  error
}

func (err LoadError) Error() string {
	return fmt.Sprintf("error loading word module #%v: %v", err.Word, err.Err)
}

func (err LoadError) Unwrap() error { return err.Err }

// UnimplementedError is raised when the core calls a host import the
// shim does not provide.
type UnimplementedError string

func (name UnimplementedError) Error() string {
	return fmt.Sprintf("`%v` is not implemented", string(name))
}

type signature struct {
	params, results []api.ValueType
}

var i32 = api.ValueTypeI32

var hostSigs = map[string]signature{
	"read": {[]api.ValueType{i32, i32}, []api.ValueType{i32}},
	"emit": {[]api.ValueType{i32}, nil},
	"load": {[]api.ValueType{i32, i32}, nil},
}

func (sig signature) String() string {
	return fmt.Sprintf("(%v) -> (%v)", typeNames(sig.params), typeNames(sig.results))
}

func typeNames(types []api.ValueType) string {
	var buf bytes.Buffer
	for i, t := range types {
		if i > 0 {
			buf.WriteString(" ")
		}
		buf.WriteString(api.ValueTypeName(t))
	}
	return buf.String()
}

// shim implements the host imports of the core; any error it raises is
// kept in err, since the trap that carries it out of the core is opaque.
type shim struct {
	logf     func(mess string, args ...interface{})
	in       *fileinput.Input
	out      flushio.WriteFlusher
	store    *capture.Store
	loadWord func(ctx context.Context, n int, b []byte) error
	err      error
}

func (sh *shim) fail(err error) {
	if sh.err == nil {
		sh.err = err
	}
	panic(err)
}

// instantiate binds every function the core imports from host into a host
// module of that name.
func (sh *shim) instantiate(ctx context.Context, rt wazero.Runtime, compiled wazero.CompiledModule, host string) error {
	builder := rt.NewHostModuleBuilder(host)
	for _, def := range compiled.ImportedFunctions() {
		modName, name, _ := def.Import()
		if modName != host {
			continue
		}
		have := signature{def.ParamTypes(), def.ResultTypes()}
		fn, ok := sh.hostFunc(name)
		if !ok {
			sh.logf("stub %v.%v %v", host, name, have)
		} else if want := hostSigs[name]; !sameTypes(have.params, want.params) || !sameTypes(have.results, want.results) {
			return fmt.Errorf("core imports %v.%v as %v, expected %v", host, name, have, want)
		}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(fn, have.params, have.results).
			WithName(name).
			Export(name)
	}
	_, err := builder.Instantiate(ctx)
	return err
}

func sameTypes(a, b []api.ValueType) bool { return bytes.Equal(a, b) }

func (sh *shim) hostFunc(name string) (api.GoModuleFunc, bool) {
	switch name {
	case "read":
		return sh.read, true
	case "emit":
		return sh.emit, true
	case "load":
		return sh.load, true
	}
	return func(context.Context, api.Module, []uint64) {
		sh.fail(UnimplementedError(name))
	}, false
}

func (sh *shim) read(_ context.Context, mod api.Module, stack []uint64) {
	addr, max := api.DecodeU32(stack[0]), api.DecodeI32(stack[1])
	if max <= 0 {
		stack[0] = 0
		return
	}
	mem := mod.Memory()
	if uint64(addr)+uint64(max) > uint64(mem.Size()) {
		sh.fail(fmt.Errorf("read buffer @%v+%v out of memory bounds", addr, max))
	}
	buf := make([]byte, max)
	n := sh.in.ReadLine(buf)
	if n > 0 {
		mem.Write(addr, buf[:n])
		sh.logf("read %v", sh.in.Last)
	}
	stack[0] = api.EncodeI32(int32(n))
}

func (sh *shim) emit(_ context.Context, _ api.Module, stack []uint64) {
	c := byte(api.DecodeI32(stack[0]))
	sh.logf("emit %v", runeio.ByteName(c))
	if _, err := sh.out.Write([]byte{c}); err != nil {
		sh.fail(fmt.Errorf("emit: %w", err))
	}
}

func (sh *shim) load(ctx context.Context, mod api.Module, stack []uint64) {
	addr, size := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
	b, ok := mod.Memory().Read(addr, size)
	if !ok {
		sh.fail(LoadError{sh.store.Len(), fmt.Errorf("module @%v+%v out of memory bounds", addr, size)})
	}
	n := sh.store.Add(b)
	sh.logf("load word #%v @%v+%v", n, addr, size)
	if err := sh.loadWord(ctx, n, sh.store.Fragments()[n]); err != nil {
		sh.fail(LoadError{n, err})
	}
}
