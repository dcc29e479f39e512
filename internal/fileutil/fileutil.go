// Package fileutil provides utility functions for file and path operations.
package fileutil

import (
	"os"
	"path/filepath"
	"strings"
)

// FileExists returns true if the given file exists.
func FileExists(file string) bool {
	_, err := os.Stat(file)
	return err == nil
}

// IsDir returns true if the given path exists and is a directory.
func IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// MustGetUserHomeDir returns the user's home directory, or "." if it cannot
// be determined.
func MustGetUserHomeDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return dir
}

// IsMarkdownFile checks if the given filename has a markdown extension and is
// not a dotfile.
func IsMarkdownFile(filename string) bool {
	base := filepath.Base(filename)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".md" || ext == ".markdown"
}

// TrimMarkdownExtension removes a markdown file extension from the filename
// if present.
func TrimMarkdownExtension(filename string) string {
	for _, ext := range []string{".md", ".markdown"} {
		if strings.HasSuffix(strings.ToLower(filename), ext) {
			return filename[:len(filename)-len(ext)]
		}
	}
	return filename
}

// ResolvePath expands a leading "~" and environment variables and returns an
// absolute path. Empty input resolves to the empty string.
func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" {
		path = MustGetUserHomeDir()
	} else if strings.HasPrefix(path, "~/") {
		path = filepath.Join(MustGetUserHomeDir(), path[2:])
	}
	path = os.ExpandEnv(path)
	return filepath.Abs(path)
}

// EnsureDir creates the directory and any missing parents.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0750)
}
