package link_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/waforthc/internal/bootstrap"
	"github.com/jcorbin/waforthc/internal/capture"
	"github.com/jcorbin/waforthc/internal/coretest"
	"github.com/jcorbin/waforthc/internal/link"
	"github.com/jcorbin/waforthc/internal/wasmir"
)

func dictEntry(prev, n uint32) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:], prev)
	binary.LittleEndian.PutUint32(b[4:], n)
	return b[:]
}

func twoWords() *capture.RunResult {
	return &capture.RunResult{
		Fragments: [][]byte{
			coretest.Word(1, coretest.Mark(0)),
			coretest.Word(2, coretest.Mark(1)),
		},
		Image:  append(dictEntry(0, 0), dictEntry(coretest.HereStart, 1)...),
		Start:  coretest.HereStart,
		Latest: coretest.HereStart + 8,
	}
}

func merge(t *testing.T, core []byte, res *capture.RunResult) (*link.Linked, error) {
	return link.Merge(context.Background(), core, res, link.Options{Logf: t.Logf})
}

func Test_Merge(t *testing.T) {
	linked, err := merge(t, coretest.Core(), twoWords())
	require.NoError(t, err)

	assert.Equal(t, uint32(coretest.TableSize), linked.TableBefore)
	assert.Equal(t, uint32(coretest.TableSize+2), linked.TableAfter)
	assert.Equal(t, linked.TableAfter, linked.Table.Entries[0].Limits.Initial)

	// 4 imports and 3 defined functions precede the words
	assert.Equal(t, []link.Word{
		{Index: 0, Name: "word0", Func: 7, Slot: 1, Size: linked.Words[0].Size},
		{Index: 1, Name: "word1", Func: 8, Slot: 2, Size: linked.Words[1].Size},
	}, linked.Words)

	here, err := linked.DefinedGlobal("here")
	require.NoError(t, err)
	assert.Equal(t, wasmir.I32Const(coretest.HereStart+16), here.Init)
	latest, err := linked.DefinedGlobal("latest")
	require.NoError(t, err)
	assert.Equal(t, wasmir.I32Const(coretest.HereStart+8), latest.Init)

	names, err := linked.FuncNames()
	require.NoError(t, err)
	assert.Equal(t, map[uint32]string{
		4: "run",
		5: "error",
		6: "nop",
		7: "word0",
		8: "word1",
	}, names)

	b, err := linked.Encode()
	require.NoError(t, err)
	again, err := wasmir.Decode("again", b)
	require.NoError(t, err)
	b2, err := again.Encode()
	require.NoError(t, err)
	assert.Equal(t, b, b2, "expected re-encoding to be stable")
}

func Test_Merge_runs(t *testing.T) {
	ctx := context.Background()
	core := coretest.Core()

	res, err := bootstrap.Run(ctx, core, "boot.fs", []byte("D0\nD1\nEx\n"), bootstrap.Options{Logf: t.Logf})
	require.NoError(t, err)
	require.Len(t, res.Fragments, 2)

	linked, err := link.Merge(ctx, core, res, link.Options{Logf: t.Logf})
	require.NoError(t, err)
	merged, err := linked.Encode()
	require.NoError(t, err)

	var out bytes.Buffer
	after, err := bootstrap.Run(ctx, merged, "main.fs", []byte("C1\nC0\nD2\nC2\n"), bootstrap.Options{
		Output: &out,
		Logf:   t.Logf,
	})
	require.NoError(t, err)

	assert.Equal(t, "bac", out.String(), "expected linked words callable, and new words definable")
	assert.Equal(t, res.End(), after.Start, "expected dictionary to resume where bootstrap left it")
	assert.Len(t, after.Fragments, 1)
	assert.Equal(t, dictEntry(res.Latest, 2), after.Image)

	img := append(append([]byte(nil), res.Image...), after.Image...)
	joined := &capture.RunResult{Image: img, Start: res.Start, Latest: after.Latest}
	chain, complete, err := capture.Dictionary(joined.ReadU32, joined.Latest)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, []uint32{coretest.HereStart + 16, coretest.HereStart + 8, coretest.HereStart}, chain)
}

func Test_Merge_noWords(t *testing.T) {
	core := coretest.Core()
	linked, err := merge(t, core, &capture.RunResult{Start: coretest.HereStart})
	require.NoError(t, err)
	assert.Empty(t, linked.Words)
	assert.Equal(t, linked.TableBefore, linked.TableAfter)

	got, err := linked.Encode()
	require.NoError(t, err)
	plain, err := wasmir.Decode("core", core)
	require.NoError(t, err)
	want, err := plain.Encode()
	require.NoError(t, err)
	assert.Equal(t, want, got, "expected a structurally identical module")
}

func Test_Merge_errors(t *testing.T) {
	for _, tc := range []struct {
		name  string
		core  []byte
		res   *capture.RunResult
		check func(t *testing.T, err error)
	}{
		{
			name: "not a word",
			res: &capture.RunResult{
				Fragments: [][]byte{coretest.Core()},
				Start:     coretest.HereStart,
			},
			check: func(t *testing.T, err error) {
				assert.Equal(t, link.ShapeError{Word: 0, Problem: "defines 3 functions, expected 1"}, err)
			},
		},
		{
			name: "slot out of bounds",
			res: &capture.RunResult{
				Fragments: [][]byte{coretest.Word(5, coretest.Mark(0))},
				Start:     coretest.HereStart,
			},
			check: func(t *testing.T, err error) {
				assert.EqualError(t, err, "word #0: slot 5 out of table bounds 2")
			},
		},
		{
			name: "garbage word",
			res: &capture.RunResult{
				Fragments: [][]byte{{0x00, 0x61, 0x73, 0x6d, 0xff}},
				Start:     coretest.HereStart,
			},
			check: func(t *testing.T, err error) {
				var verr wasmir.ValidateError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "word0.wasm", verr.Name)
			},
		},
		{
			name: "hidden globals",
			core: coretest.Build(coretest.Options{HideGlobals: true}),
			res:  twoWords(),
			check: func(t *testing.T, err error) {
				assert.EqualError(t, err, `core: no exported global "here"`)
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			core := tc.core
			if core == nil {
				core = coretest.Core()
			}
			linked, err := merge(t, core, tc.res)
			require.Error(t, err)
			assert.Nil(t, linked)
			tc.check(t, err)
		})
	}
}
