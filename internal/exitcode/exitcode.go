// Package exitcode maps command errors to process exit codes.
package exitcode

import (
	"errors"
	"fmt"
)

const (
	OK = 0

	// Something could not be resolved or built. The details were logged.
	Failure = 1

	// Bad flags, arguments or config. Nothing was attempted.
	Usage = 2
)

// Coder is implemented by errors that carry their own exit code
type Coder interface {
	error
	ExitCode() int
}

// Get returns the exit code for an error returned by a command:
//
//	nil => OK
//	errors implementing Coder => value returned by ExitCode
//	all other errors => Failure
func Get(err error) int {
	if err == nil {
		return OK
	}
	if c := Coder(nil); errors.As(err, &c) {
		return c.ExitCode()
	}
	return Failure
}

// Set attaches an exit code to an error. The message and the error chain are
// unchanged.
func Set(err error, code int) error {
	if err == nil {
		return nil
	}
	return coded{err: err, code: code}
}

// Usagef formats an error reported with the Usage exit code
func Usagef(format string, args ...interface{}) error {
	return Set(fmt.Errorf(format, args...), Usage)
}

type coded struct {
	err  error
	code int
}

var _ Coder = coded{}

func (c coded) Error() string {
	return c.err.Error()
}

func (c coded) ExitCode() int {
	return c.code
}

func (c coded) Unwrap() error {
	return c.err
}
