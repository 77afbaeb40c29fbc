//go:build windows

package kv

// lockFile is a no-op on Windows; only the in-process mutex applies.
func lockFile(path string) (func(), error) {
	return func() {}, nil
}
