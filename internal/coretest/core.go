// Package coretest builds a tiny stand-in for the Forth core module, and the
// word modules it "generates", for use as test fixtures.
//
// The toy core reads one line at a time and dispatches on its first byte:
//
//	E<c>  emit c
//	D<n>  define word n: grow the table, load prebaked word module n, and
//	      link an 8 byte dictionary entry {prev latest, n} at here
//	C<n>  call word n through the table, then emit the byte it stored at MarkAddr
//	A     emit the digit of run's argument
//	K     call the unimplemented shell.key import
//	<d>   any other line sets the error code to d-'0' and traps
//
// End of input sets the error code to 4 (eoi) and returns normally.
package coretest

import (
	"fmt"
	"sort"
)

// Memory layout of the toy core.
const (
	LineAddr  = 256
	LineSize  = 64
	MarkAddr  = 512
	HereStart = 1024
	WordsAddr = 4096

	// Words is how many prebaked word modules the core carries.
	Words = 8

	// TableSize is the core's declared initial table size.
	TableSize = 1
)

// Status codes set by the toy core.
const (
	StatusUnknown = 1
	StatusQuit    = 2
	StatusAbort   = 3
	StatusEOI     = 4
	StatusBye     = 5
)

// Global indices of the toy core.
const (
	GlobalErr    = 0
	GlobalLatest = 1
	GlobalHere   = 2
)

// Options varies the toy core.
type Options struct {
	// CorruptWords replaces the prebaked word modules with garbage.
	CorruptWords bool

	// HideGlobals omits the here/latest global exports.
	HideGlobals bool

	// Stall makes run quit before reading any input.
	Stall bool

	// DoubleElems gives every prebaked word a second, redundant, element
	// segment; such words load fine but cannot be linked.
	DoubleElems bool
}

// Core returns the default toy core module.
func Core() []byte { return Build(Options{}) }

// Mark returns the byte that word n stores when called.
func Mark(n int) byte { return byte('a' + n) }

// wordLen is the size of every prebaked word module.
func wordLen(opts Options) int { return len(prebaked(0, opts)) }

func prebaked(n int, opts Options) []byte {
	elems := 1
	if opts.DoubleElems {
		elems = 2
	}
	return word(int32(n+1), Mark(n), elems)
}

// Build assembles a toy core module.
func Build(opts Options) []byte {
	const (
		tRead  = 0 // (i32 i32) -> i32
		tUnary = 1 // (i32) -> ()
		tLoad  = 2 // (i32 i32) -> ()
		tError = 3 // () -> i32
		tVoid  = 4 // () -> ()

		fRead  = 0
		fEmit  = 1
		fLoad  = 2
		fKey   = 3
		fRun   = 4
		fError = 5
		fNop   = 6
	)

	var words []byte
	for n := 0; n < Words; n++ {
		w := prebaked(n, opts)
		if len(w) != wordLen(opts) {
			panic(fmt.Sprintf("coretest: word %v has length %v, expected %v", n, len(w), wordLen(opts)))
		}
		if opts.CorruptWords {
			for i := range w {
				w[i] = 0xee
			}
		}
		words = append(words, w...)
	}

	var b buf
	b.header()
	b.types(
		funcType{[]byte{valI32, valI32}, []byte{valI32}},
		funcType{[]byte{valI32}, nil},
		funcType{[]byte{valI32, valI32}, nil},
		funcType{nil, []byte{valI32}},
		funcType{nil, nil},
	)
	b.section(2, func(s *buf) {
		imports := []struct {
			name string
			typ  uint32
		}{{"read", tRead}, {"emit", tUnary}, {"load", tLoad}, {"key", tError}}
		s.vec(len(imports), func(i int) {
			s.name("shell").name(imports[i].name).op(kindFunc).u32(imports[i].typ)
		})
	})
	b.section(3, func(s *buf) {
		s.vec(3, func(i int) { s.u32([]uint32{tUnary, tError, tVoid}[i]) })
	})
	b.section(4, func(s *buf) {
		s.vec(1, func(int) { s.op(funcRef, 0x00).u32(TableSize) })
	})
	b.section(5, func(s *buf) {
		s.vec(1, func(int) { s.op(0x00).u32(1) })
	})
	b.section(6, func(s *buf) {
		inits := []int32{0, 0, HereStart}
		s.vec(len(inits), func(i int) {
			s.op(valI32, 0x01)
			s.Write(constExpr(inits[i]))
		})
	})
	b.section(7, func(s *buf) {
		type export struct {
			name string
			kind byte
			idx  uint32
		}
		exports := []export{
			{"memory", kindMemory, 0},
			{"table", kindTable, 0},
			{"run", kindFunc, fRun},
			{"error", kindFunc, fError},
		}
		if !opts.HideGlobals {
			exports = append(exports,
				export{"latest", kindGlobal, GlobalLatest},
				export{"here", kindGlobal, GlobalHere})
		}
		s.vec(len(exports), func(i int) {
			s.name(exports[i].name).op(exports[i].kind).u32(exports[i].idx)
		})
	})
	b.section(9, func(s *buf) {
		s.vec(1, func(int) {
			s.u32(0)
			s.Write(constExpr(0))
			s.vec(1, func(int) { s.u32(fNop) })
		})
	})
	b.section(10, func(s *buf) {
		bodies := [][]byte{runBody(opts, fRead, fEmit, fLoad, fKey, tVoid), errorBody(), {0x00, 0x0b}}
		s.vec(len(bodies), func(i int) {
			s.u32(uint32(len(bodies[i])))
			s.Write(bodies[i])
		})
	})
	b.section(11, func(s *buf) {
		s.vec(1, func(int) {
			s.u32(0)
			s.Write(constExpr(WordsAddr))
			s.u32(uint32(len(words)))
			s.Write(words)
		})
	})
	b.custom("name", funcNames(map[uint32]string{
		fRun:   "run",
		fError: "error",
		fNop:   "nop",
	}))
	return b.Bytes()
}

func errorBody() []byte {
	var c code
	c.op(0x00) // no locals
	c.globalGet(GlobalErr).op(0x0b)
	return c.Bytes()
}

func runBody(opts Options, fRead, fEmit, fLoad, fKey, tVoid uint32) []byte {
	var c code
	c.op(0x01, 0x02, valI32) // locals: n, c
	wl := int32(wordLen(opts))

	if opts.Stall {
		c.i32Const(StatusQuit).globalSet(GlobalErr).op(0x00)
	}

	arg := func() { c.i32Const(LineAddr).load8(1) }
	digit := func() { arg(); c.i32Const('0').op(0x6b) }
	command := func(ch byte, body func()) {
		c.op(0x20, 0x02).i32Const(int32(ch)).op(0x46) // local.get c; i32.eq
		c.op(0x04, 0x40)                                // if
		body()
		c.op(0x0c, 0x01) // br $next
		c.op(0x0b)       // end
	}

	c.op(0x02, 0x40) // block $done
	c.op(0x03, 0x40) // loop $next

	c.i32Const(LineAddr).i32Const(LineSize).call(fRead)
	c.op(0x22, 0x01) // local.tee n
	c.op(0x45)       // i32.eqz
	c.op(0x0d, 0x01) // br_if $done
	c.i32Const(LineAddr).load8(0)
	c.op(0x21, 0x02) // local.set c

	command('E', func() {
		arg()
		c.call(fEmit)
	})

	command('D', func() {
		c.op(0xd0, funcRef).i32Const(1).op(0xfc, 0x0f, 0x00, 0x1a) // table.grow 1; drop
		digit()
		c.i32Const(wl).op(0x6c)        // i32.mul
		c.i32Const(WordsAddr).op(0x6a) // i32.add
		c.i32Const(wl).call(fLoad)
		c.globalGet(GlobalHere).globalGet(GlobalLatest).op(0x36, 0x02, 0x00) // i32.store
		c.globalGet(GlobalHere)
		digit()
		c.op(0x36, 0x02, 0x04) // i32.store offset=4
		c.globalGet(GlobalHere).globalSet(GlobalLatest)
		c.globalGet(GlobalHere).i32Const(8).op(0x6a).globalSet(GlobalHere)
	})

	command('C', func() {
		digit()
		c.i32Const(1).op(0x6a)
		c.op(0x11).u32(tVoid).op(0x00) // call_indirect
		c.i32Const(MarkAddr).load8(0).call(fEmit)
	})

	command('A', func() {
		c.op(0x20, 0x00).i32Const('0').op(0x6a).call(fEmit) // local.get arg
	})

	command('K', func() {
		c.call(fKey).call(fEmit)
	})

	c.op(0x20, 0x02).i32Const('0').op(0x6b).globalSet(GlobalErr)
	c.op(0x00) // unreachable

	c.op(0x0b) // end loop
	c.op(0x0b) // end block

	c.i32Const(StatusEOI).globalSet(GlobalErr)
	c.op(0x0b)
	return c.Bytes()
}

func funcNames(names map[uint32]string) []byte {
	var sub buf
	idxs := make([]uint32, 0, len(names))
	for idx := range names {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	sub.vec(len(idxs), func(i int) { sub.u32(idxs[i]).name(names[idxs[i]]) })

	var b buf
	b.op(0x01).u32(uint32(sub.Len()))
	b.Write(sub.Bytes())
	return b.Bytes()
}
