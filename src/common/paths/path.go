// Package paths provides common path manipulation utilities for ldfpkg.
package paths

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// Expand expands special path prefixes:
// - ~ expands to the user's home directory
// - Environment variables are expanded via os.ExpandEnv
func Expand(path string) string {
	return ExpandHome(os.ExpandEnv(path))
}

// ExpandHome expands only the ~ prefix to the user's home directory
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if usr, err := user.Current(); err == nil {
			return filepath.Join(usr.HomeDir, path[2:])
		}
	} else if path == "~" {
		if usr, err := user.Current(); err == nil {
			return usr.HomeDir
		}
	}
	return path
}

// CacheDir returns the per-user cache directory for the named application
func CacheDir(app string) string {
	return filepath.Join(xdg.CacheHome, app)
}

// StateDir returns the per-user state directory for the named application
func StateDir(app string) string {
	return filepath.Join(xdg.StateHome, app)
}

// ConfigDirs returns the configuration directories for the named
// application, from lowest to highest precedence: system directories first,
// then the user's own config directory.
func ConfigDirs(app string) []string {
	var dirs []string
	for i := len(xdg.ConfigDirs) - 1; i >= 0; i-- {
		dirs = append(dirs, filepath.Join(xdg.ConfigDirs[i], app))
	}
	return append(dirs, filepath.Join(xdg.ConfigHome, app))
}

// EnsureDir ensures that the directory for the given path exists.
// If the path is a file path, it creates the parent directory.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// EnsureDirPath ensures that the given directory path exists.
func EnsureDirPath(dirPath string) error {
	return os.MkdirAll(dirPath, 0755)
}

// Exists returns true if the path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir returns true if the path exists and is a directory
func IsDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// IsFile returns true if the path exists and is a regular file
func IsFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
