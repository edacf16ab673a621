//go:build darwin || linux
// +build darwin linux

package logger

import "os"

// See https://no-color.org/
func hasNoColorEnvironmentVariable() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}
