package coretest

// Word returns a word module as the toy core would generate it: it imports
// the table and memory, defines one function storing mark at MarkAddr, and
// installs that function into table slot.
//
// The function also carries never-taken recursive and indirect calls and a
// typed block, so relinking it exercises index relocation.
func Word(slot int32, mark byte) []byte { return word(slot, mark, 1) }

func word(slot int32, mark byte, elems int) []byte {
	var b buf
	b.header()
	b.types(funcType{nil, nil})
	b.section(2, func(s *buf) {
		s.vec(2, func(i int) {
			if i == 0 {
				s.name("env").name("table").op(kindTable, funcRef, 0x00).u32(1)
			} else {
				s.name("env").name("memory").op(kindMemory, 0x00).u32(1)
			}
		})
	})
	b.section(3, func(s *buf) {
		s.vec(1, func(int) { s.u32(0) })
	})
	b.section(9, func(s *buf) {
		s.vec(elems, func(int) {
			s.u32(0)
			s.Write(constExpr(slot))
			s.vec(1, func(int) { s.u32(0) })
		})
	})

	var c code
	c.op(0x00)       // no locals
	c.op(0x02, 0x00) // block (type 0)
	c.i32Const(MarkAddr).i32Const(int32(mark)).op(0x3a, 0x00, 0x00) // i32.store8
	c.op(0x0b)
	c.i32Const(0).op(0x04, 0x40) // if 0
	c.call(0)
	c.i32Const(0).op(0x11, 0x00, 0x00) // call_indirect type 0
	c.op(0x0b)
	c.op(0x0b)

	b.section(10, func(s *buf) {
		s.vec(1, func(int) {
			s.u32(uint32(c.Len()))
			s.Write(c.Bytes())
		})
	})
	return b.Bytes()
}
