// Package fileguard provides the small read-modify-rewrite-atomically
// helper shared by the secrets store and the execution history, both of
// which persist a single JSON or encrypted-blob document that must never
// be observed half-written by a concurrent reader.
package fileguard

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// WithLock acquires an exclusive file lock on path+".lock" for the
// duration of fn, serializing concurrent writers across processes (the
// scheduler daemon and the secrets CLI may run at the same time).
func WithLock(path string, fn func() error) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()
	return fn()
}

// AtomicWrite writes data to path by first writing to a sibling temporary
// file and renaming it into place, so a crash or concurrent read never
// observes a partially written file. perm sets the mode of the final file.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
