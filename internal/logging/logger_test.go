package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, DEBUG, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, INFO, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestConsoleLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger("scan", Options{Console: &buf, ConsoleLevel: WARN})
	require.NoError(t, err)

	l.Info("не должно попасть")
	l.Warn("region %d", 7)

	assert.NotContains(t, buf.String(), "не должно попасть")
	assert.Contains(t, buf.String(), "[WARN] [scan] region 7")
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	l, err := NewLogger("scan", Options{Console: &console, Dir: dir, ConsoleLevel: ERROR, FileLevel: DEBUG})
	require.NoError(t, err)

	l.Debug("chunk %d.%d", 1, 2)
	require.NoError(t, l.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(dir + "/" + entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] [scan] chunk 1.2")
	assert.Empty(t, console.String())
}
