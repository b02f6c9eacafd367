package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// Filename defaults
const (
	DefaultFileBase   = "video"
	MaxFileBaseLength = 120
	allowedNameRunes  = " ._-"
)

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// SanitizeFilename keeps letters, digits, spaces and "._-" from a title so it
// can be used as an attachment name. An empty result falls back to
// DefaultFileBase.
func SanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(allowedNameRunes, r) {
			b.WriteRune(r)
		}
	}
	name := strings.TrimSpace(b.String())
	name = strings.Trim(name, ".")
	if runes := []rune(name); len(runes) > MaxFileBaseLength {
		name = strings.TrimSpace(string(runes[:MaxFileBaseLength]))
	}
	if name == "" {
		return DefaultFileBase
	}
	return name
}

// AttachmentName builds "<sanitized title>.<ext>"
func AttachmentName(title, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "mp4"
	}
	return SanitizeFilename(title) + "." + ext
}

// ResolveInDir joins name onto dir and rejects names escaping dir.
func ResolveInDir(dir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid file name: %q", name)
	}
	return filepath.Join(dir, name), nil
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// FileExists reports whether path names an existing regular file
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
