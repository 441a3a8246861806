package wasmir

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-interpreter/wagon/wasm/leb128"
)

// Relocation maps function and type indices of a donor module's code into
// the index spaces of the module it is being moved into.
type Relocation struct {
	Func func(uint32) (uint32, error)
	Type func(uint32) (uint32, error)
}

// Code rewrites every function and type index immediate in a function body's
// expression, returning a new expression.
func (rel Relocation) Code(code []byte) ([]byte, error) {
	cw := codeRewriter{
		rel:  rel,
		code: code,
		r:    bytes.NewReader(code),
	}
	if err := cw.rewrite(); err != nil {
		return nil, err
	}
	return cw.out.Bytes(), nil
}

type codeRewriter struct {
	rel  Relocation
	code []byte
	r    *bytes.Reader
	out  bytes.Buffer
	mark int
}

type unsupportedOpcodeError struct {
	op  []byte
	pos int
}

func (err unsupportedOpcodeError) Error() string {
	return fmt.Sprintf("unsupported opcode %x @%v", err.op, err.pos)
}

func (cw *codeRewriter) pos() int { return len(cw.code) - cw.r.Len() }

func (cw *codeRewriter) rewrite() error {
	for cw.r.Len() > 0 {
		at := cw.pos()
		op, _ := cw.r.ReadByte()
		if err := cw.instr(at, op); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("@%v: %w", at, err)
		}
	}
	cw.out.Write(cw.code[cw.mark:])
	return nil
}

func (cw *codeRewriter) instr(at int, op byte) error {
	switch {
	case op == 0x00, op == 0x01, op == 0x05, op == 0x0b, op == 0x0f,
		op == 0x1a, op == 0x1b, op == 0xd1:
		return nil

	case op == 0x02, op == 0x03, op == 0x04: // block, loop, if
		return cw.blockType()

	case op == 0x0c, op == 0x0d, // br, br_if
		0x20 <= op && op <= 0x26, // local.*, global.*, table.get/set
		op == 0x3f, op == 0x40: // memory.size/grow
		return cw.skipU32(1)

	case op == 0x0e: // br_table
		n, err := leb128.ReadVarUint32(cw.r)
		if err != nil {
			return err
		}
		return cw.skipU32(int(n) + 1)

	case op == 0x10, op == 0x12, op == 0xd2: // call, return_call, ref.func
		return cw.remap(cw.rel.Func)

	case op == 0x11, op == 0x13: // call_indirect, return_call_indirect
		if err := cw.remap(cw.rel.Type); err != nil {
			return err
		}
		return cw.skipU32(1)

	case op == 0x1c: // select t*
		n, err := leb128.ReadVarUint32(cw.r)
		if err != nil {
			return err
		}
		return cw.skip(int64(n))

	case 0x28 <= op && op <= 0x3e: // memarg
		return cw.skipU32(2)

	case op == 0x41:
		_, err := leb128.ReadVarint32(cw.r)
		return err
	case op == 0x42:
		_, err := leb128.ReadVarint64(cw.r)
		return err
	case op == 0x43:
		return cw.skip(4)
	case op == 0x44:
		return cw.skip(8)

	case 0x45 <= op && op <= 0xc4: // numeric
		return nil

	case op == 0xd0: // ref.null heaptype
		_, err := leb128.ReadVarint64(cw.r)
		return err

	case op == 0xfc:
		sub, err := leb128.ReadVarUint32(cw.r)
		if err != nil {
			return err
		}
		switch {
		case sub <= 7: // saturating truncation
			return nil
		case sub == 8, sub == 10, sub == 12, sub == 14:
			return cw.skipU32(2)
		case sub == 9, sub == 11, sub == 13, 15 <= sub && sub <= 17:
			return cw.skipU32(1)
		}
		return unsupportedOpcodeError{[]byte{op, byte(sub)}, at}
	}
	return unsupportedOpcodeError{[]byte{op}, at}
}

func (cw *codeRewriter) blockType() error {
	at := cw.pos()
	bt, err := leb128.ReadVarint64(cw.r)
	if err != nil || bt < 0 || cw.rel.Type == nil {
		return err
	}
	idx, err := cw.rel.Type(uint32(bt))
	if err != nil {
		return err
	}
	cw.out.Write(cw.code[cw.mark:at])
	leb128.WriteVarint64(&cw.out, int64(idx))
	cw.mark = cw.pos()
	return nil
}

func (cw *codeRewriter) remap(fn func(uint32) (uint32, error)) error {
	at := cw.pos()
	v, err := leb128.ReadVarUint32(cw.r)
	if err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	nv, err := fn(v)
	if err != nil {
		return err
	}
	cw.out.Write(cw.code[cw.mark:at])
	leb128.WriteVarUint32(&cw.out, nv)
	cw.mark = cw.pos()
	return nil
}

func (cw *codeRewriter) skipU32(n int) error {
	for ; n > 0; n-- {
		if _, err := leb128.ReadVarUint32(cw.r); err != nil {
			return err
		}
	}
	return nil
}

func (cw *codeRewriter) skip(n int64) error {
	if int64(cw.r.Len()) < n {
		return io.ErrUnexpectedEOF
	}
	_, err := cw.r.Seek(n, io.SeekCurrent)
	return err
}
