package dataset

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// writeAtomic writes via a temporary file in the destination directory and
// renames it into place. Readers see either the prior version or the new
// one, never a partial write.
func writeAtomic(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "dataset: create directory %q", dir)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "dataset: create temp file")
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if err := write(tmp); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return eris.Wrap(err, "dataset: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return eris.Wrap(err, "dataset: close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return eris.Wrapf(err, "dataset: rename into %q", path)
	}
	return nil
}
