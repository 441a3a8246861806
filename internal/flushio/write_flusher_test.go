package flushio_test

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/waforthc/internal/flushio"
)

func TestNewWriteFlusher(t *testing.T) {
	var sb strings.Builder
	wf := flushio.NewWriteFlusher(&sb)
	_, err := wf.Write([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", sb.String(), "buffers are written through")

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	assert.Same(t, bw, flushio.NewWriteFlusher(bw))

	assert.NoError(t, flushio.NewWriteFlusher(io.Discard).Flush())

	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close()
	wf = flushio.NewWriteFlusher(f)
	_, err = wf.Write([]byte("Hi"))
	require.NoError(t, err)
	st, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Size(), "files are buffered until flush")
	require.NoError(t, wf.Flush())
	st, err = f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Size())
}
