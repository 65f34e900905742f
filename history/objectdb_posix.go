//go:build !windows

package history

import "os"

// atomicReplace relies on POSIX rename(2) semantics: renaming onto an
// existing file is atomic and the previous target simply disappears.
func atomicReplace(tmp, target string) error {
	return os.Rename(tmp, target)
}
