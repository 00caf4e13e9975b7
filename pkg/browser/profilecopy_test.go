package browser

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFakeProfile(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cookies"), []byte("cookie-db"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Preferences"), []byte("{}"), 0o644))
	storage := filepath.Join(dir, "Local Storage")
	require.NoError(t, os.MkdirAll(storage, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(storage, "leveldb"), []byte("ls"), 0o644))
	return dir
}

func TestCopyLocalProfileBestEffort(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("profile root is resolved from LOCALAPPDATA on windows")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)

	var root string
	if runtime.GOOS == "darwin" {
		root = filepath.Join(home, "Library", "Application Support", "Google", "Chrome")
	} else {
		root = filepath.Join(home, ".config", "google-chrome")
	}
	writeFakeProfile(t, root, "Default")

	m := newTestManager(t, Options{Headless: true, UseLocalProfile: true})

	copied, ok := m.copyLocalProfile()
	require.True(t, ok)
	t.Cleanup(func() { _ = os.RemoveAll(copied.dir) })

	assert.Equal(t, "Default", copied.name)

	dst := filepath.Join(copied.dir, "Default")
	data, err := os.ReadFile(filepath.Join(dst, "Cookies"))
	require.NoError(t, err)
	assert.Equal(t, "cookie-db", string(data))

	data, err = os.ReadFile(filepath.Join(dst, "Local Storage", "leveldb"))
	require.NoError(t, err)
	assert.Equal(t, "ls", string(data))

	// Files the source profile never had are skipped, not fatal.
	_, err = os.Stat(filepath.Join(dst, "Login Data"))
	assert.True(t, os.IsNotExist(err))
}

func TestCopyLocalProfileMissingProfile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("profile root is resolved from LOCALAPPDATA on windows")
	}
	t.Setenv("HOME", t.TempDir())

	m := newTestManager(t, Options{Headless: true, UseLocalProfile: true, ProfileName: "Profile 7"})

	_, ok := m.copyLocalProfile()
	assert.False(t, ok)
}

func TestRemoveTempDirs(t *testing.T) {
	m := newTestManager(t, Options{Headless: true})

	dir, err := os.MkdirTemp("", "chatdrive-profile-")
	require.NoError(t, err)
	m.tempDirs = append(m.tempDirs, dir)

	m.removeTempDirsLocked()

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, m.tempDirs)
}
