package importcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCachesUntilFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fragment.md")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	c, err := New(nil)
	require.NoError(t, err)
	defer c.Close()

	calls := 0
	load := func() (string, error) {
		calls++
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	out, err := c.Load(path, load)
	require.NoError(t, err)
	assert.Equal(t, "v1", out)
	assert.Equal(t, 1, calls)

	out, err = c.Load(path, load)
	require.NoError(t, err)
	assert.Equal(t, "v1", out)
	assert.Equal(t, 1, calls, "second Load should hit the cache")

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	require.Eventually(t, func() bool {
		out, err := c.Load(path, load)
		return err == nil && out == "v2"
	}, 2*time.Second, 20*time.Millisecond, "cache should invalidate after the file changes")
}

func TestLoadSurfacesRenderError(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Load("/nonexistent/path/for/importcache_test", func() (string, error) {
		return "", os.ErrNotExist
	})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
