package backend_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/waforthc/internal/backend"
	"github.com/jcorbin/waforthc/internal/coretest"
	"github.com/jcorbin/waforthc/internal/wasmir"
)

type call struct {
	Dir   string
	Name  string
	Args  []string
	Files []string
}

// fakeRunner records calls, and plays the part of cc by writing its -o file.
type fakeRunner struct {
	t     *testing.T
	calls []call
	fail  string
}

func (fr *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	ents, err := os.ReadDir(dir)
	require.NoError(fr.t, err)
	var files []string
	for _, ent := range ents {
		files = append(files, ent.Name())
	}
	fr.calls = append(fr.calls, call{dir, name, args, files})

	if name == fr.fail {
		return backend.BuildError{Tool: name, Args: args, Err: errors.New("exit status 1")}
	}
	for i, arg := range args {
		if arg == "-o" && i+1 < len(args) {
			return os.WriteFile(filepath.Join(dir, args[i+1]), []byte("ELF "+name), 0o644)
		}
	}
	return nil
}

func testModule(t *testing.T) *wasmir.Module {
	mod, err := wasmir.Decode("core", coretest.Core())
	require.NoError(t, err)
	return mod
}

func Test_ForPath(t *testing.T) {
	nat := &backend.Native{}
	assert.Equal(t, backend.Wasm{}, backend.ForPath("out.wasm", nat))
	assert.Equal(t, nat, backend.ForPath("out", nat))
	assert.Equal(t, nat, backend.ForPath("out.wasm.exe", nat))
}

func Test_Wasm_Emit(t *testing.T) {
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "prog.wasm")
	mod := testModule(t)

	fr := &fakeRunner{t: t}
	em := backend.ForPath(out, &backend.Native{Runner: fr})
	require.NoError(t, em.Emit(ctx, mod, out))
	assert.Empty(t, fr.calls, "expected no external tools run")

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	want, err := mod.Encode()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	ents, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, ents, 1, "expected no temporary files left behind")
}

func Test_Native_Emit(t *testing.T) {
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "prog")

	fr := &fakeRunner{t: t}
	nat := &backend.Native{
		Toolchain: backend.Toolchain{
			Wasm2C:      "wasm2c-1.0.34",
			CC:          "gcc",
			IncludeDirs: []string{"/opt/wabt/include"},
			LibDirs:     []string{"/opt/wabt/lib"},
			CFlags:      []string{"-O2"},
		},
		Init:   []byte("1 2 + .\n"),
		Runner: fr,
		Logf:   t.Logf,
	}
	require.NoError(t, nat.Emit(ctx, testModule(t), out))

	require.Len(t, fr.calls, 2)
	dir := fr.calls[0].Dir
	assert.Equal(t, call{
		Dir:   dir,
		Name:  "wasm2c-1.0.34",
		Args:  []string{"waforth.wasm", "-n", "waforth", "-o", "_waforth.c"},
		Files: []string{"_waforth_config.h", "_waforth_rt.c", "waforth.wasm"},
	}, fr.calls[0])
	assert.Equal(t, call{
		Dir:  dir,
		Name: "gcc",
		Args: []string{
			"-o", "waforth.out", "-O2",
			"-I/opt/wabt/include",
			"_waforth_rt.c", "_waforth.c",
			"-L/opt/wabt/lib",
			"-lwasm-rt-impl", "-lm",
		},
		Files: []string{"_waforth.c", "_waforth_config.h", "_waforth_rt.c", "waforth.wasm"},
	}, fr.calls[1])

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "ELF gcc", string(got))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "expected build dir removed")
}

func Test_Native_Emit_failure(t *testing.T) {
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "prog")

	fr := &fakeRunner{t: t, fail: "cc"}
	err := (&backend.Native{Runner: fr}).Emit(ctx, testModule(t), out)

	var berr backend.BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "cc", berr.Tool)
	assert.Equal(t, -1, berr.ExitCode())

	require.Len(t, fr.calls, 2)
	assert.Equal(t, "wasm2c", fr.calls[0].Name)
	_, err = os.Stat(fr.calls[0].Dir)
	assert.True(t, os.IsNotExist(err), "expected build dir removed")
	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err), "expected no output written")
}

func Test_ExecRunner(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("no false command")
	}
	err := backend.ExecRunner{Logf: t.Logf}.Run(context.Background(), t.TempDir(), "false")
	var berr backend.BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, 1, berr.ExitCode())
}

func Test_InitHeader(t *testing.T) {
	assert.Equal(t,
		"static uint8_t waforth_init[] = {0};\nstatic size_t waforth_init_len = 0;\n",
		string(backend.InitHeader(nil)))
	assert.Equal(t,
		"static uint8_t waforth_init[] = {49,32,46,10};\nstatic size_t waforth_init_len = 4;\n",
		string(backend.InitHeader([]byte("1 .\n"))))
}
