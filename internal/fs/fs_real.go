package fs

import (
	"os"
	"path/filepath"
)

type realFS struct {
	cwd string
}

func RealFS() FS {
	cwd, err := os.Getwd()
	if err != nil {
		// This probably only happens in the browser
		return &realFS{cwd: "/"}
	}

	// Resolve symlinks in the current working directory so paths printed
	// relative to it match the absolute paths produced by resolution. This
	// ignores errors. The unresolved working directory is still
	// usable for everything except pretty printing.
	if path, err := filepath.EvalSymlinks(cwd); err == nil {
		cwd = path
	}
	return &realFS{cwd: cwd}
}

func (*realFS) Exists(path string) bool {
	// Results are never cached. Resolution must observe files that appear or
	// disappear between two requests, e.g. while watching.
	_, err := os.Stat(path)
	return err == nil
}

func (*realFS) IsAbs(p string) bool {
	return filepath.IsAbs(p)
}

func (*realFS) Abs(p string) (string, bool) {
	abs, err := filepath.Abs(p)
	return abs, err == nil
}

func (*realFS) Join(parts ...string) string {
	return filepath.Clean(filepath.Join(parts...))
}

func (fs *realFS) Cwd() string {
	return fs.cwd
}

func (*realFS) PathSeparator() byte {
	return filepath.Separator
}
