package fs

// This is a mock implementation of the "fs" module for use with tests. It does
// not actually touch the file system. Instead, it answers existence checks
// from a pre-specified set of file paths. Every parent directory of a listed
// file exists too.

import (
	"path"
	"strings"
)

type MockKind uint8

const (
	MockUnix MockKind = iota
	MockWindows
)

type mockFS struct {
	dirs          map[string]bool
	files         map[string]bool
	absWorkingDir string
	Kind          MockKind
}

func MockFS(input []string, kind MockKind, absWorkingDir string) FS {
	dirs := make(map[string]bool)
	files := make(map[string]bool)

	for _, k := range input {
		key := k
		if kind == MockWindows {
			key = unix2win(key)
		}
		files[key] = true

		// Register every parent directory
		for {
			kDir := path.Dir(k)
			key := kDir
			if kind == MockWindows {
				key = unix2win(key)
			}
			dirs[key] = true
			if kDir == k {
				break
			}
			k = kDir
		}
	}

	return &mockFS{dirs, files, absWorkingDir, kind}
}

func (fs *mockFS) Exists(p string) bool {
	var slash byte = '/'
	if fs.Kind == MockWindows {
		p = strings.ReplaceAll(p, "/", "\\")
		slash = '\\'
	}

	// Trim trailing slashes before lookup
	firstSlash := strings.IndexByte(p, slash)
	for {
		i := strings.LastIndexByte(p, slash)
		if i != len(p)-1 || i <= firstSlash {
			break
		}
		p = p[:i]
	}

	return fs.files[p] || fs.dirs[p]
}

func win2unix(p string) string {
	if strings.HasPrefix(p, "C:\\") || strings.HasPrefix(p, "c:\\") {
		p = p[2:]
	}
	p = strings.ReplaceAll(p, "\\", "/")
	return p
}

func unix2win(p string) string {
	p = strings.ReplaceAll(p, "/", "\\")
	if strings.HasPrefix(p, "\\") {
		p = "C:" + p
	}
	return p
}

func (fs *mockFS) IsAbs(p string) bool {
	if fs.Kind == MockWindows {
		p = win2unix(p)
	}
	return path.IsAbs(p)
}

func (fs *mockFS) Abs(p string) (string, bool) {
	if fs.Kind == MockWindows {
		p = win2unix(p)
	}

	p = path.Clean(path.Join("/", p))

	if fs.Kind == MockWindows {
		p = unix2win(p)
	}

	return p, true
}

func (fs *mockFS) Join(parts ...string) string {
	if fs.Kind == MockWindows {
		converted := make([]string, len(parts))
		for i, part := range parts {
			converted[i] = win2unix(part)
		}
		parts = converted
	}

	p := path.Clean(path.Join(parts...))

	if fs.Kind == MockWindows {
		p = unix2win(p)
	}

	return p
}

func (fs *mockFS) Cwd() string {
	return fs.absWorkingDir
}

func (fs *mockFS) PathSeparator() byte {
	if fs.Kind == MockWindows {
		return '\\'
	}
	return '/'
}
