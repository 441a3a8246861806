package wasmir

import (
	"bytes"
	"fmt"

	"github.com/go-interpreter/wagon/wasm/leb128"
)

const (
	opEnd      = 0x0b
	opI32Const = 0x41
)

// I32Const returns the constant expression `i32.const v; end`.
func I32Const(v int32) []byte {
	var buf bytes.Buffer
	buf.WriteByte(opI32Const)
	leb128.WriteVarint64(&buf, int64(v))
	buf.WriteByte(opEnd)
	return buf.Bytes()
}

// EvalI32 evaluates a constant expression that must be a lone i32.const.
func EvalI32(expr []byte) (int32, error) {
	r := bytes.NewReader(expr)
	if op, err := r.ReadByte(); err != nil {
		return 0, fmt.Errorf("empty constant expression")
	} else if op != opI32Const {
		return 0, fmt.Errorf("not an i32.const expression (opcode 0x%02x)", op)
	}
	v, err := leb128.ReadVarint32(r)
	if err != nil {
		return 0, fmt.Errorf("bad i32.const immediate: %w", err)
	}
	if op, err := r.ReadByte(); err != nil || op != opEnd || r.Len() != 0 {
		return 0, fmt.Errorf("constant expression has trailing instructions")
	}
	return v, nil
}
