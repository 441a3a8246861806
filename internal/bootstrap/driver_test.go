package bootstrap_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/waforthc/internal/bootstrap"
	"github.com/jcorbin/waforthc/internal/capture"
	"github.com/jcorbin/waforthc/internal/coretest"
	"github.com/jcorbin/waforthc/internal/wasmir"
)

type runTest struct {
	name string
	core []byte
	src  string
	opts bootstrap.Options

	out  bytes.Buffer
	errs bytes.Buffer
}

func (rt *runTest) run(t *testing.T) (*capture.RunResult, error) {
	core := rt.core
	if core == nil {
		core = coretest.Core()
	}
	opts := rt.opts
	opts.Output = &rt.out
	opts.Errors = &rt.errs
	opts.Logf = t.Logf
	return bootstrap.Run(context.Background(), core, "test.fs", []byte(rt.src), opts)
}

func dictEntry(prev, n uint32) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:], prev)
	binary.LittleEndian.PutUint32(b[4:], n)
	return b[:]
}

func Test_Run(t *testing.T) {
	rt := runTest{src: "EH\nEi\nD0\nD1\nC0\nC1\nC0\n"}
	res, err := rt.run(t)
	require.NoError(t, err)

	assert.Equal(t, "Hiaba", rt.out.String())
	assert.Empty(t, rt.errs.String())

	assert.Equal(t, [][]byte{
		coretest.Word(1, coretest.Mark(0)),
		coretest.Word(2, coretest.Mark(1)),
	}, res.Fragments)

	assert.Equal(t, uint32(coretest.HereStart), res.Start)
	assert.Equal(t, uint32(coretest.HereStart+8), res.Latest)
	assert.Equal(t, append(dictEntry(0, 0), dictEntry(coretest.HereStart, 1)...), res.Image)
	assert.Equal(t, uint32(coretest.HereStart+16), res.End())
	assert.False(t, res.Bye)

	chain, complete, err := capture.Dictionary(res.ReadU32, res.Latest)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, []uint32{coretest.HereStart + 8, coretest.HereStart}, chain)
}

func Test_Run_runArg(t *testing.T) {
	for _, tc := range []struct {
		name string
		arg  *int32
		out  string
	}{
		{"default", nil, "1"},
		{"zero", int32Ptr(0), "0"},
		{"seven", int32Ptr(7), "7"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rt := runTest{src: "A\n", opts: bootstrap.Options{RunArg: tc.arg}}
			_, err := rt.run(t)
			require.NoError(t, err)
			assert.Equal(t, tc.out, rt.out.String())
		})
	}
}

func int32Ptr(v int32) *int32 { return &v }

func Test_Run_empty(t *testing.T) {
	rt := runTest{}
	res, err := rt.run(t)
	require.NoError(t, err)
	assert.Empty(t, res.Fragments)
	assert.Empty(t, res.Image)
	assert.Equal(t, uint32(coretest.HereStart), res.Start)
	assert.Equal(t, uint32(0), res.Latest)
	assert.Equal(t, res.Start, res.End())
}

func Test_Run_bye(t *testing.T) {
	rt := runTest{src: "EA\nD0\n5\nEB\nD1\n"}
	res, err := rt.run(t)
	require.NoError(t, err)
	assert.True(t, res.Bye)
	assert.Equal(t, "A", rt.out.String(), "expected no output after bye")
	assert.Len(t, res.Fragments, 1, "expected no words defined after bye")
	assert.Len(t, res.Image, 8)
}

func Test_Run_recoverable(t *testing.T) {
	rt := runTest{src: "2\n3\n1\nEx\n"}
	res, err := rt.run(t)
	require.NoError(t, err)
	assert.Equal(t, "x", rt.out.String())
	assert.False(t, res.Bye)
	var reports []string
	for _, line := range strings.Split(rt.errs.String(), "\n") {
		if strings.HasPrefix(line, "test.fs:") {
			reports = append(reports, line)
		}
	}
	if assert.Len(t, reports, 1, "expected only the unknown fault reported") {
		assert.True(t, strings.HasPrefix(reports[0], "test.fs:3: error: "), "got %q", reports[0])
	}
}

func Test_Run_errors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		core  []byte
		src   string
		opts  bootstrap.Options
		check func(t *testing.T, err error)
	}{
		{
			name: "unknown status",
			src:  "9\n",
			check: func(t *testing.T, err error) {
				var serr bootstrap.StatusError
				require.ErrorAs(t, err, &serr)
				assert.Equal(t, bootstrap.Status(9), serr.Status)
			},
		},
		{
			name: "eoi trap",
			src:  "Ea\n4\n",
			check: func(t *testing.T, err error) {
				var ierr bootstrap.InvariantError
				require.ErrorAs(t, err, &ierr)
				assert.Equal(t, bootstrap.StatusEOI, ierr.Status)
			},
		},
		{
			name: "unimplemented import",
			src:  "K\n",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, bootstrap.UnimplementedError("key"))
				assert.EqualError(t, err, "`key` is not implemented")
			},
		},
		{
			name: "corrupt word",
			core: coretest.Build(coretest.Options{CorruptWords: true}),
			src:  "D0\n",
			check: func(t *testing.T, err error) {
				var lerr bootstrap.LoadError
				require.ErrorAs(t, err, &lerr)
				assert.Equal(t, 0, lerr.Word)
				var derr wasmir.DecodeError
				assert.ErrorAs(t, err, &derr)
			},
		},
		{
			name: "hidden globals",
			core: coretest.Build(coretest.Options{HideGlobals: true}),
			check: func(t *testing.T, err error) {
				assert.Equal(t, bootstrap.ExportError{Kind: "global", Name: "here"}, err)
			},
		},
		{
			name: "renamed run",
			opts: bootstrap.Options{Exports: bootstrap.Exports{Run: "interpret"}},
			check: func(t *testing.T, err error) {
				assert.EqualError(t, err, `core does not export function "interpret"`)
			},
		},
		{
			name: "stall",
			core: coretest.Build(coretest.Options{Stall: true}),
			src:  "Ea\n",
			check: func(t *testing.T, err error) {
				var serr bootstrap.StallError
				require.ErrorAs(t, err, &serr)
				assert.Equal(t, bootstrap.StatusQuit, serr.Status)
			},
		},
		{
			name: "not a module",
			core: []byte("\x00asn"),
			check: func(t *testing.T, err error) {
				var derr wasmir.DecodeError
				assert.ErrorAs(t, err, &derr)
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rt := runTest{core: tc.core, src: tc.src, opts: tc.opts}
			res, err := rt.run(t)
			require.Error(t, err)
			assert.Nil(t, res)
			tc.check(t, err)
		})
	}
}
