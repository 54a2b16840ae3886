// Package longpath escapes file paths so they survive platform path
// length limits, mirroring dumper.py's lp() helper: paths already in
// escaped form, empty paths, and paths under the threshold pass through
// unchanged.
package longpath

import "path/filepath"

// threshold is dumper.py's 247-character cutoff, chosen to stay clear
// of the traditional 260-character MAX_PATH even after a drive letter
// and a few path separators are added.
const threshold = 247

// Escape returns path rewritten into its platform's long-path form if
// it's at risk of exceeding the platform limit, otherwise path
// unchanged.
func Escape(path string) string {
	if path == "" || len(path) <= threshold || isAlreadyEscaped(path) {
		return path
	}
	return escape(filepath.Clean(path))
}
