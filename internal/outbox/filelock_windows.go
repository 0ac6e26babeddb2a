//go:build windows

package outbox

import "os"

// Windows has no flock equivalent worth fighting; the in-process
// mutation lock still applies.
func acquireFileLock(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
}

func releaseFileLock(f *os.File) error {
	if f == nil {
		return nil
	}
	return f.Close()
}
