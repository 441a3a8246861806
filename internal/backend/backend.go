// Package backend writes a linked module out, either as a portable binary
// module or as a native executable built through wasm2c and a C compiler.
package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jcorbin/waforthc/internal/wasmir"
)

// Emitter writes mod to outfile.
type Emitter interface {
	Emit(ctx context.Context, mod *wasmir.Module, outfile string) error
}

// ForPath selects the Wasm emitter for a ".wasm" outfile, native otherwise.
func ForPath(outfile string, native *Native) Emitter {
	if strings.HasSuffix(outfile, ".wasm") {
		return Wasm{}
	}
	return native
}

// Wasm emits the module in binary form.
type Wasm struct{}

// Emit encodes mod and atomically replaces outfile with it.
func (Wasm) Emit(_ context.Context, mod *wasmir.Module, outfile string) error {
	b, err := mod.Encode()
	if err != nil {
		return err
	}
	return writeFileAtomic(outfile, b, 0o644)
}

// writeFileAtomic writes to a temporary file beside name, renaming it into
// place only once fully written.
func writeFileAtomic(name string, data []byte, perm os.FileMode) (rerr error) {
	f, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if rerr != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Chmod(perm); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), name); err != nil {
		return fmt.Errorf("replacing %v: %w", name, err)
	}
	return nil
}
