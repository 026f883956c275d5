package instance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCanonicalWorkspacePath(t *testing.T) {
	tmpDir := t.TempDir()

	originalDir, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(originalDir)

	err = os.Chdir(tmpDir)
	require.NoError(t, err)

	path, err := GetCanonicalWorkspacePath()
	require.NoError(t, err)

	// Should be absolute
	assert.True(t, filepath.IsAbs(path))

	// Should equal the canonical form of tmpDir (t.TempDir may be symlinked,
	// e.g. /tmp vs /private/tmp on macOS)
	realTmpDir, err := filepath.EvalSymlinks(tmpDir)
	require.NoError(t, err)
	absRealTmpDir, err := filepath.Abs(realTmpDir)
	require.NoError(t, err)

	assert.Equal(t, absRealTmpDir, path)
}

func TestGetCanonicalWorkspacePath_ResolvesSymlinks(t *testing.T) {
	tmpDir := t.TempDir()

	realDir := filepath.Join(tmpDir, "real")
	require.NoError(t, os.Mkdir(realDir, 0o755))

	linkDir := filepath.Join(tmpDir, "link")
	require.NoError(t, os.Symlink(realDir, linkDir))

	originalDir, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(originalDir)

	require.NoError(t, os.Chdir(linkDir))

	path, err := GetCanonicalWorkspacePath()
	require.NoError(t, err)

	// The symlinked entry path must resolve to the real directory
	canonicalReal, err := filepath.EvalSymlinks(realDir)
	require.NoError(t, err)
	assert.Equal(t, canonicalReal, path)
}
