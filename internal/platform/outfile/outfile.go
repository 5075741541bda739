// Package outfile writes generated artifacts (exports, reports, charts) under
// timestamped names without ever replacing an existing file.
package outfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// CreateExclusive creates base+ext, or base_1+ext, base_2+ext and so on when
// the name is taken by an earlier artifact from the same second.
func CreateExclusive(base, ext string, perm fs.FileMode) (*os.File, error) {
	name := base + ext
	for i := 1; ; i++ {
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if !errors.Is(err, fs.ErrExist) {
			if err != nil {
				return nil, fmt.Errorf("create %s: %w", name, err)
			}
			return f, nil
		}
		name = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
}

// Write creates a fresh file with CreateExclusive, fills it with fn and
// returns its path. A failed write leaves nothing behind.
func Write(base, ext string, perm fs.FileMode, fn func(io.Writer) error) (string, error) {
	f, err := CreateExclusive(base, ext, perm)
	if err != nil {
		return "", err
	}
	err = fn(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
