// Package bootstrap runs a Forth core module over a source program,
// capturing the word modules and dictionary image that the run produces.
package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/go-interpreter/wagon/wasm"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/jcorbin/waforthc/internal/capture"
	"github.com/jcorbin/waforthc/internal/fileinput"
	"github.com/jcorbin/waforthc/internal/flushio"
	"github.com/jcorbin/waforthc/internal/wasmir"
)

// Exports names the core exports used by a run.
type Exports struct {
	Run    string
	Error  string
	Here   string
	Latest string
}

// Options configures a Run; zero fields take defaults.
type Options struct {
	Exports Exports

	// HostModule is the import module name under which the core expects
	// its read, emit, and load functions.
	HostModule string

	// CoreName is the name of the core instance in the runtime.
	CoreName string

	// RunArg is passed to every call of the run export; 1 when nil.
	RunArg *int32

	// Output receives emitted bytes; Errors receives fault reports.
	Output io.Writer
	Errors io.Writer

	Logf func(mess string, args ...interface{})
}

// DefaultExports are the export names of the waforth core.
var DefaultExports = Exports{
	Run:    "run",
	Error:  "error",
	Here:   "here",
	Latest: "latest",
}

func (opts *Options) setDefaults() {
	if opts.Exports.Run == "" {
		opts.Exports.Run = DefaultExports.Run
	}
	if opts.Exports.Error == "" {
		opts.Exports.Error = DefaultExports.Error
	}
	if opts.Exports.Here == "" {
		opts.Exports.Here = DefaultExports.Here
	}
	if opts.Exports.Latest == "" {
		opts.Exports.Latest = DefaultExports.Latest
	}
	if opts.HostModule == "" {
		opts.HostModule = "shell"
	}
	if opts.CoreName == "" {
		opts.CoreName = "waforth"
	}
	if opts.RunArg == nil {
		arg := int32(1)
		opts.RunArg = &arg
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Errors == nil {
		opts.Errors = io.Discard
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...interface{}) {}
	}
}

// ExportError reports a core export that is missing or of the wrong kind.
type ExportError struct {
	Kind string
	Name string
}

func (err ExportError) Error() string {
	if err.Name == "" {
		return fmt.Sprintf("core exports no %v", err.Kind)
	}
	return fmt.Sprintf("core does not export %v %q", err.Kind, err.Name)
}

// maxStalls bounds how many times in a row the core may fault without
// consuming input.
const maxStalls = 16

type driver struct {
	Options
	sh shim

	rt wazero.Runtime

	memName   string
	tableName string

	run    api.Function
	errFn  api.Function
	here   api.Global
	latest api.Global
}

// Run drives the core over src, named name, until it reaches end of input
// or says bye.
func Run(ctx context.Context, core []byte, name string, src []byte, opts Options) (*capture.RunResult, error) {
	opts.setDefaults()

	ir, err := wasmir.Decode("core", core)
	if err != nil {
		return nil, err
	}
	d := &driver{Options: opts}
	if d.memName, err = exportOf(ir, wasm.ExternalMemory, "memory"); err != nil {
		return nil, err
	}
	if d.tableName, err = exportOf(ir, wasm.ExternalTable, "table"); err != nil {
		return nil, err
	}

	d.rt = wazero.NewRuntimeWithConfig(ctx, wasmir.RuntimeConfig())
	defer d.rt.Close(ctx)

	compiled, err := d.rt.CompileModule(ctx, core)
	if err != nil {
		return nil, wasmir.ValidateError{Name: ir.Name, Err: err}
	}

	out := flushio.NewWriteFlusher(opts.Output)
	d.sh = shim{
		logf:     opts.Logf,
		in:       fileinput.New(name, src),
		out:      out,
		store:    &capture.Store{},
		loadWord: d.loadWord,
	}
	if err := d.sh.instantiate(ctx, d.rt, compiled, opts.HostModule); err != nil {
		return nil, err
	}

	mod, err := d.rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(opts.CoreName))
	if err != nil {
		if d.sh.err != nil {
			return nil, d.sh.err
		}
		return nil, fmt.Errorf("instantiating core: %w", err)
	}
	if err := d.resolve(mod); err != nil {
		return nil, err
	}

	res, err := d.loop(ctx, mod)
	if ferr := out.Flush(); err == nil && ferr != nil {
		err = ferr
	}
	return res, err
}

func exportOf(ir *wasmir.Module, kind wasm.External, what string) (string, error) {
	name, ok := ir.ExportOf(kind, 0)
	if !ok {
		return "", ExportError{Kind: what}
	}
	return name, nil
}

func (d *driver) resolve(mod api.Module) error {
	if d.run = mod.ExportedFunction(d.Exports.Run); d.run == nil {
		return ExportError{"function", d.Exports.Run}
	}
	if d.errFn = mod.ExportedFunction(d.Exports.Error); d.errFn == nil {
		return ExportError{"function", d.Exports.Error}
	}
	if d.here = mod.ExportedGlobal(d.Exports.Here); d.here == nil {
		return ExportError{"global", d.Exports.Here}
	}
	if d.latest = mod.ExportedGlobal(d.Exports.Latest); d.latest == nil {
		return ExportError{"global", d.Exports.Latest}
	}
	return nil
}

func (d *driver) loop(ctx context.Context, mod api.Module) (*capture.RunResult, error) {
	start := uint32(d.here.Get())
	d.Logf("start here=%v latest=%v", start, uint32(d.latest.Get()))

	var (
		state  = stateRunning
		stalls int
	)
	for !state.terminal() {
		off := d.sh.in.Offset()

		_, runErr := d.run.Call(ctx, api.EncodeI32(*d.RunArg))
		if err := d.sh.out.Flush(); err != nil {
			return nil, err
		}
		if d.sh.err != nil {
			return nil, d.sh.err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		results, err := d.errFn.Call(ctx)
		if err != nil {
			return nil, fmt.Errorf("calling %v: %w", d.Exports.Error, err)
		}
		status := Status(api.DecodeI32(results[0]))

		if state, err = step(status, runErr); err != nil {
			return nil, err
		}
		d.Logf("%v => %v", status, state)

		if state == stateFault {
			fmt.Fprintf(d.Errors, "%v: error: %v\n", d.sh.in.Last.Location, runErr)
		}
		if !state.terminal() {
			if d.sh.in.Offset() != off {
				stalls = 0
			} else if stalls++; stalls > maxStalls {
				return nil, StallError{Status: status, Times: stalls, Err: runErr}
			}
		}
	}

	end := uint32(d.here.Get())
	if end < start {
		return nil, fmt.Errorf("dictionary pointer moved backward from %v to %v", start, end)
	}
	mem := mod.ExportedMemory(d.memName)
	if mem == nil {
		return nil, ExportError{"memory", d.memName}
	}
	image, ok := mem.Read(start, end-start)
	if !ok {
		return nil, fmt.Errorf("dictionary [%v, %v) out of memory bounds", start, end)
	}
	image = append([]byte(nil), image...)

	latest := uint32(d.latest.Get())
	d.Logf("end here=%v latest=%v words=%v", end, latest, d.sh.store.Len())
	return d.sh.store.Result(image, start, latest, state == stateBye), nil
}

// loadWord instantiates word module n against the core's table and memory.
func (d *driver) loadWord(ctx context.Context, n int, b []byte) error {
	ir, err := wasmir.Decode(fmt.Sprintf("word%d.wasm", n), b)
	if err != nil {
		return err
	}
	changed, err := d.rebind(ir)
	if err != nil {
		return err
	}
	if changed {
		if b, err = ir.Encode(); err != nil {
			return err
		}
	}
	compiled, err := d.rt.CompileModule(ctx, b)
	if err != nil {
		return wasmir.ValidateError{Name: ir.Name, Err: err}
	}
	_, err = d.rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(fmt.Sprintf("word.%d", n)))
	return err
}

// rebind points the word's table and memory imports at the core instance.
func (d *driver) rebind(ir *wasmir.Module) (changed bool, err error) {
	if ir.Import == nil {
		return false, nil
	}
	var tables, mems int
	for i := range ir.Import.Entries {
		imp := &ir.Import.Entries[i]
		var field string
		switch imp.Type.Kind() {
		case wasm.ExternalTable:
			tables++
			field = d.tableName
		case wasm.ExternalMemory:
			mems++
			field = d.memName
		default:
			return false, fmt.Errorf("unsupported %v import %v.%v", imp.Type.Kind(), imp.ModuleName, imp.FieldName)
		}
		if tables > 1 || mems > 1 {
			return false, fmt.Errorf("extra %v import %v.%v", imp.Type.Kind(), imp.ModuleName, imp.FieldName)
		}
		if imp.ModuleName != d.CoreName || imp.FieldName != field {
			imp.ModuleName, imp.FieldName = d.CoreName, field
			changed = true
		}
	}
	return changed, nil
}
