//go:build windows

package longpath

import (
	"strings"

	"golang.org/x/sys/windows"
)

func isAlreadyEscaped(path string) bool {
	return strings.HasPrefix(path, `\\?\`)
}

// escape resolves path to its absolute form via GetFullPathName (the
// \\?\ prefix only works with a fully-qualified path) and prefixes it,
// falling back to a bare prefix if resolution fails.
func escape(path string) string {
	abs, err := windows.FullPath(path)
	if err != nil {
		return `\\?\` + path
	}
	return `\\?\` + abs
}
