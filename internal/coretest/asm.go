package coretest

import (
	"bytes"

	"github.com/go-interpreter/wagon/wasm/leb128"
)

const (
	valI32  = 0x7f
	funcRef = 0x70

	kindFunc   = 0x00
	kindTable  = 0x01
	kindMemory = 0x02
	kindGlobal = 0x03
)

type buf struct{ bytes.Buffer }

func (b *buf) op(ops ...byte) *buf {
	b.Write(ops)
	return b
}

func (b *buf) u32(v uint32) *buf {
	leb128.WriteVarUint32(b, v)
	return b
}

func (b *buf) s32(v int32) *buf {
	leb128.WriteVarint64(b, int64(v))
	return b
}

func (b *buf) name(s string) *buf {
	b.u32(uint32(len(s)))
	b.WriteString(s)
	return b
}

func (b *buf) vec(n int, each func(i int)) *buf {
	b.u32(uint32(n))
	for i := 0; i < n; i++ {
		each(i)
	}
	return b
}

func (b *buf) section(id byte, body func(s *buf)) *buf {
	var s buf
	body(&s)
	b.WriteByte(id)
	b.u32(uint32(s.Len()))
	b.Write(s.Bytes())
	return b
}

func (b *buf) custom(name string, payload []byte) *buf {
	return b.section(0, func(s *buf) {
		s.name(name)
		s.Write(payload)
	})
}

func (b *buf) header() *buf {
	return b.op(0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00)
}

type funcType struct{ params, results []byte }

func (b *buf) types(types ...funcType) *buf {
	return b.section(1, func(s *buf) {
		s.vec(len(types), func(i int) {
			s.op(0x60)
			s.vec(len(types[i].params), func(j int) { s.op(types[i].params[j]) })
			s.vec(len(types[i].results), func(j int) { s.op(types[i].results[j]) })
		})
	})
}

// code assembles instruction sequences.
type code struct{ buf }

func (c *code) i32Const(v int32) *code {
	c.op(0x41)
	c.s32(v)
	return c
}

func (c *code) call(fn uint32) *code {
	c.op(0x10)
	c.u32(fn)
	return c
}

func (c *code) globalGet(g uint32) *code {
	c.op(0x23)
	c.u32(g)
	return c
}

func (c *code) globalSet(g uint32) *code {
	c.op(0x24)
	c.u32(g)
	return c
}

func (c *code) load8(offset uint32) *code {
	c.op(0x2d, 0x00)
	c.u32(offset)
	return c
}

func (c *code) op(ops ...byte) *code {
	c.Write(ops)
	return c
}

func constExpr(v int32) []byte {
	var c code
	c.i32Const(v).op(0x0b)
	return c.Bytes()
}
