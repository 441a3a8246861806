package capture_test

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/waforthc/internal/capture"
)

func Test_Store(t *testing.T) {
	var st capture.Store
	assert.Equal(t, 0, st.Len())

	buf := []byte{1, 2, 3}
	assert.Equal(t, 0, st.Add(buf))
	buf[0] = 9
	assert.Equal(t, 1, st.Add([]byte{4}))

	assert.Equal(t, 2, st.Len())
	assert.Equal(t, [][]byte{{1, 2, 3}, {4}}, st.Fragments(), "expected copies in load order")
}

func testResult() *capture.RunResult {
	img := make([]byte, 16)
	// two entries: @1000 links to 0, @1008 links to @1000
	binary.LittleEndian.PutUint32(img[0:], 0)
	binary.LittleEndian.PutUint32(img[4:], 7)
	binary.LittleEndian.PutUint32(img[8:], 1000)
	binary.LittleEndian.PutUint32(img[12:], 8)
	return &capture.RunResult{
		Fragments: [][]byte{{0, 'a', 's', 'm'}, {0, 'a', 's', 'm', 1}},
		Image:     img,
		Start:     1000,
		Latest:    1008,
	}
}

func Test_RunResult_ReadU32(t *testing.T) {
	res := testResult()
	assert.Equal(t, uint32(1016), res.End())

	v, ok := res.ReadU32(1008)
	assert.True(t, ok)
	assert.Equal(t, uint32(1000), v)

	_, ok = res.ReadU32(999)
	assert.False(t, ok, "expected below image to be unreadable")
	_, ok = res.ReadU32(1013)
	assert.False(t, ok, "expected straddling the end to be unreadable")
	v, ok = res.ReadU32(1012)
	assert.True(t, ok)
	assert.Equal(t, uint32(8), v)
}

func Test_RunResult_snapshot(t *testing.T) {
	res := testResult()
	res.Bye = true

	b1, err := res.MarshalBinary()
	require.NoError(t, err)
	b2, err := testResultBye().MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, b1, b2, "expected canonical encoding")

	name := filepath.Join(t.TempDir(), "run.cbor")
	require.NoError(t, capture.Save(name, res))
	back, err := capture.Load(name)
	require.NoError(t, err)
	assert.Equal(t, res, back)

	_, err = capture.Load(filepath.Join(t.TempDir(), "nope.cbor"))
	assert.Error(t, err)
}

func Test_RunResult_Save(t *testing.T) {
	res := &capture.RunResult{Image: []byte{1}, Start: 4}
	b, err := res.MarshalBinary()
	require.NoError(t, err)

	var fields map[int]interface{}
	require.NoError(t, cbor.Unmarshal(b, &fields), "expected a plain map of fields")
	assert.Equal(t, []byte{1}, fields[2])
	assert.Equal(t, uint64(4), fields[3])
	assert.NotContains(t, fields, 5, "expected bye omitted when unset")

	name := filepath.Join(t.TempDir(), "run.cbor")
	require.NoError(t, capture.Save(name, res))
	back, err := capture.Load(name)
	require.NoError(t, err)
	assert.Equal(t, res.Image, back.Image)
	assert.Equal(t, res.Start, back.Start)
	assert.Equal(t, uint32(5), back.End())
	assert.Empty(t, back.Fragments)
}

func testResultBye() *capture.RunResult {
	res := testResult()
	res.Bye = true
	return res
}

func Test_RunResult_UnmarshalBinary_garbage(t *testing.T) {
	var res capture.RunResult
	assert.Error(t, res.UnmarshalBinary([]byte{0xff, 0x00}))
}

func Test_Dictionary(t *testing.T) {
	res := testResult()

	chain, complete, err := capture.Dictionary(res.ReadU32, res.Latest)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Equal(t, []uint32{1008, 1000}, chain)

	t.Run("empty", func(t *testing.T) {
		chain, complete, err := capture.Dictionary(res.ReadU32, 0)
		require.NoError(t, err)
		assert.True(t, complete)
		assert.Empty(t, chain)
	})

	t.Run("leaves image", func(t *testing.T) {
		res := testResult()
		binary.LittleEndian.PutUint32(res.Image[0:], 500)
		chain, complete, err := capture.Dictionary(res.ReadU32, res.Latest)
		require.NoError(t, err)
		assert.False(t, complete)
		assert.Equal(t, []uint32{1008, 1000}, chain)
	})

	t.Run("cycle", func(t *testing.T) {
		res := testResult()
		binary.LittleEndian.PutUint32(res.Image[0:], 1008)
		_, _, err := capture.Dictionary(res.ReadU32, res.Latest)
		var cerr capture.CycleError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, capture.CycleError{At: 1000, Back: 1008}, cerr)
	})
}
