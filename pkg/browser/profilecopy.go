package browser

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// profileStateFiles are the pieces of a local Chrome profile worth
// carrying into an ephemeral copy: cookies, storage, and saved
// credentials. Everything else (caches, histories) stays behind.
var profileStateFiles = []string{
	"Cookies",
	"Cookies-journal",
	"Local Storage",
	"Session Storage",
	"Web Data",
	"Login Data",
	"Preferences",
}

type profileCopy struct {
	dir  string
	name string
}

// copyLocalProfile clones the selected state files of the local Chrome
// profile into a temp directory so the launched browser can reuse
// existing logins without touching (or locking) the real profile.
// Per-file failures are logged and skipped.
func (m *Manager) copyLocalProfile() (profileCopy, bool) {
	srcRoot, err := localProfileDir()
	if err != nil {
		m.log.Warnf("Local browser profile unavailable: %v", err)
		return profileCopy{}, false
	}

	name := m.opts.ProfileName
	src := filepath.Join(srcRoot, name)
	if _, err := os.Stat(src); err != nil {
		m.log.Warnf("Local browser profile %s not found: %v", name, err)
		return profileCopy{}, false
	}

	tempDir, err := os.MkdirTemp("", "chatdrive-profile-")
	if err != nil {
		m.log.Warnf("Failed to create temp profile directory: %v", err)
		return profileCopy{}, false
	}

	dst := filepath.Join(tempDir, name)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		m.log.Warnf("Failed to create temp profile directory: %v", err)
		_ = os.RemoveAll(tempDir)
		return profileCopy{}, false
	}

	copied := 0
	for _, file := range profileStateFiles {
		if err := copyPath(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			m.log.Debugf("Skipping profile file %s: %v", file, err)
			continue
		}
		copied++
	}
	m.log.Infof("Copied %d/%d profile files from %s", copied, len(profileStateFiles), name)

	return profileCopy{dir: tempDir, name: name}, true
}

// localProfileDir returns the platform root that holds Chrome
// profiles.
func localProfileDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "Google", "Chrome"), nil
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "Google", "Chrome", "User Data"), nil
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "google-chrome"), nil
	}
}

// copyPath copies a file or directory tree.
func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyDir(src, dst)
	}
	return copyFile(src, dst, info.Mode())
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := copyPath(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// removeTempDirsLocked deletes ephemeral profile copies. Caller holds
// the manager lock.
func (m *Manager) removeTempDirsLocked() {
	for _, dir := range m.tempDirs {
		if err := os.RemoveAll(dir); err != nil {
			m.log.Warnf("Failed to remove temp directory %s: %v", dir, err)
		}
	}
	m.tempDirs = nil
}
