package fs

// The resolver only ever asks one question of the file system: is there
// something at this path? Everything else in this interface is path
// manipulation, which is part of the interface because the mock
// implementation used for tests should not depend on the host's path rules
// (i.e. different slashes for Windows) while the real implementation should.
type FS interface {
	// Exists reports whether a file or directory is present at the path.
	// Symlinks are followed. Any failure, including permission errors and
	// races with concurrent deletes, is reported as false.
	Exists(path string) bool

	IsAbs(path string) bool
	Abs(path string) (string, bool)
	Join(parts ...string) string
	Cwd() string

	// The separator used when candidate paths are built by concatenation
	PathSeparator() byte
}
