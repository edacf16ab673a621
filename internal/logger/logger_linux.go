//go:build linux
// +build linux

package logger

import (
	"os"

	"golang.org/x/sys/unix"
)

const SupportsColorEscapes = true

func GetTerminalInfo(file *os.File) (info TerminalInfo) {
	// Only use colors when the file descriptor is a terminal
	if _, err := unix.IoctlGetTermios(int(file.Fd()), unix.TCGETS); err == nil {
		info.UseColorEscapes = !hasNoColorEnvironmentVariable()
	}
	return
}

func writeStringWithColor(file *os.File, text string) {
	file.WriteString(text)
}
