package filex

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDir(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)

	got, err := EnsureDir("filecache")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmp, "filecache"), got)
	assert.DirExists(t, got)

	again, err := EnsureDir(got)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	require.NoError(t, os.WriteFile("taken", []byte("x"), 0o600))
	_, err = EnsureDir("taken")
	assert.Error(t, err)
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	des, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, de := range des {
		names = append(names, de.Name())
	}
	return names
}

func TestStageCommit(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "ab", "abcdef")

	s, err := Stage(dst, strings.NewReader("appearance"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), s.Size)
	assert.NoFileExists(t, dst)

	require.NoError(t, s.Commit())
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "appearance", string(b))
	assert.Equal(t, []string{"abcdef"}, entries(t, filepath.Dir(dst)))
}

func TestStageDiscard(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "f")

	a, err := Stage(dst, strings.NewReader("one"))
	require.NoError(t, err)
	b, err := Stage(dst, strings.NewReader("two"))
	require.NoError(t, err)
	assert.Len(t, entries(t, dir), 2)

	a.Discard()
	b.Discard()
	assert.Empty(t, entries(t, dir))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestStage_ReadErrorLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	_, err := Stage(filepath.Join(dir, "f"), failingReader{})
	assert.ErrorContains(t, err, "connection reset")
	assert.Empty(t, entries(t, dir))
}
