//go:build windows

package history

import "os"

// atomicReplace matches hbm_write_db's #ifdef _WIN32 branch: Windows
// rename() historically refuses to overwrite an existing file, so the
// old target is unlinked first. This reopens a small window where a
// crash between the two calls loses the previous file, same as the
// original.
func atomicReplace(tmp, target string) error {
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return os.Rename(tmp, target)
}
