package global

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	names := []string{}
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	slices.Sort(names)
	return names
}

func TestRollingFileWriterRotates(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRollingFileWriter(dir, "pocketbot")
	require.NoError(t, err)
	w.maxSize = 10
	w.maxLogs = 3

	for _, line := range []string{"first line\n", "second line\n", "third line\n", "fourth line\n"} {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"pocketbot-1.log", "pocketbot-2.log", "pocketbot.log"}, logFiles(t, dir))

	current, err := os.ReadFile(filepath.Join(dir, "pocketbot.log"))
	require.NoError(t, err)
	assert.Equal(t, "fourth line\n", string(current))

	newest, err := os.ReadFile(filepath.Join(dir, "pocketbot-1.log"))
	require.NoError(t, err)
	assert.Equal(t, "third line\n", string(newest))
}

func TestRollingFileWriterIgnoresStrayFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pocketbot-old.log"), []byte("x"), 0644))
	w, err := NewRollingFileWriter(dir, "pocketbot")
	require.NoError(t, err)
	w.maxSize = 1

	_, err = w.Write([]byte("a\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("b\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"pocketbot-1.log", "pocketbot-old.log", "pocketbot.log"}, logFiles(t, dir))
}

func TestLogSinkDropsWhenFull(t *testing.T) {
	sink := NewLogSink(1)

	n, err := sink.Write([]byte("first\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, err = sink.Write([]byte("second\n"))
	require.NoError(t, err)

	assert.Equal(t, "first", <-sink.Lines())
	select {
	case line := <-sink.Lines():
		t.Fatalf("unexpected line %q", line)
	default:
	}
}
