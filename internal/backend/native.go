package backend

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jcorbin/waforthc/internal/wasmir"
)

//go:embed rt/waforth_rt.c
var runtimeSource []byte

// Names of the files laid out in the build directory.
const (
	moduleFile  = "waforth.wasm"
	lowerFile   = "_waforth.c"
	runtimeFile = "_waforth_rt.c"
	configFile  = "_waforth_config.h"
	binaryFile  = "waforth.out"
)

// Toolchain names the external tools of a native build.
type Toolchain struct {
	Wasm2C      string
	CC          string
	IncludeDirs []string
	LibDirs     []string
	Libs        []string
	CFlags      []string
}

// DefaultToolchain expects wasm2c and cc on PATH, with the wasm2c runtime
// library installed where cc finds it.
var DefaultToolchain = Toolchain{
	Wasm2C: "wasm2c",
	CC:     "cc",
	Libs:   []string{"wasm-rt-impl", "m"},
}

// Native emits a native executable.
type Native struct {
	Toolchain

	// Init is the program run by the executable at startup; when empty, the
	// executable starts an interactive session instead.
	Init []byte

	Runner Runner
	Logf   func(mess string, args ...interface{})
}

// Runner runs an external tool within dir.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// BuildError reports a failed external build step.
type BuildError struct {
	Tool string
	Args []string
	Err  error
}

func (err BuildError) Error() string {
	return fmt.Sprintf("%v failed: %v", err.Tool, err.Err)
}

func (err BuildError) Unwrap() error { return err.Err }

// ExitCode returns the exit status of the failed tool, or -1 if it did not
// run to completion.
func (err BuildError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(err.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// ExecRunner runs tools as subprocesses.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logf   func(mess string, args ...interface{})
}

// Run runs name to completion, returning a BuildError if it fails.
func (er ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	if er.Logf != nil {
		er.Logf("exec %v %v", name, strings.Join(args, " "))
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = er.Stdout
	cmd.Stderr = er.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return BuildError{Tool: name, Args: args, Err: err}
	}
	return nil
}

// Emit lowers mod to C, and builds it into the outfile executable, within a
// temporary directory that is removed before returning.
func (nat *Native) Emit(ctx context.Context, mod *wasmir.Module, outfile string) (rerr error) {
	bin, err := mod.Encode()
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "waforthc-")
	if err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(dir); rerr == nil {
			rerr = err
		}
	}()
	nat.logf("build dir %v", dir)

	for _, file := range []struct {
		name string
		data []byte
	}{
		{moduleFile, bin},
		{runtimeFile, runtimeSource},
		{configFile, InitHeader(nat.Init)},
	} {
		if err := os.WriteFile(filepath.Join(dir, file.name), file.data, 0o644); err != nil {
			return err
		}
	}

	runner := nat.Runner
	if runner == nil {
		runner = ExecRunner{Logf: nat.Logf}
	}
	tc := nat.Toolchain
	if err := runner.Run(ctx, dir, orDefault(tc.Wasm2C, DefaultToolchain.Wasm2C),
		moduleFile, "-n", "waforth", "-o", lowerFile); err != nil {
		return err
	}
	if err := runner.Run(ctx, dir, orDefault(tc.CC, DefaultToolchain.CC), tc.ccArgs()...); err != nil {
		return err
	}

	exe, err := os.ReadFile(filepath.Join(dir, binaryFile))
	if err != nil {
		return fmt.Errorf("reading built executable: %w", err)
	}
	return writeFileAtomic(outfile, exe, 0o755)
}

func (tc Toolchain) ccArgs() []string {
	args := []string{"-o", binaryFile}
	args = append(args, tc.CFlags...)
	for _, dir := range tc.IncludeDirs {
		args = append(args, "-I"+dir)
	}
	args = append(args, runtimeFile, lowerFile)
	for _, dir := range tc.LibDirs {
		args = append(args, "-L"+dir)
	}
	libs := tc.Libs
	if libs == nil {
		libs = DefaultToolchain.Libs
	}
	for _, lib := range libs {
		args = append(args, "-l"+lib)
	}
	return args
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (nat *Native) logf(mess string, args ...interface{}) {
	if nat.Logf != nil {
		nat.Logf(mess, args...)
	}
}

// InitHeader renders the C header embedding the startup program.
func InitHeader(init []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("static uint8_t waforth_init[] = {")
	for i, b := range init {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(int(b)))
	}
	if len(init) == 0 {
		buf.WriteByte('0')
	}
	buf.WriteString("};\n")
	fmt.Fprintf(&buf, "static size_t waforth_init_len = %d;\n", len(init))
	return buf.Bytes()
}
