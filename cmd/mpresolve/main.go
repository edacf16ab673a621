package main

import (
	"errors"
	"os"

	"github.com/uniplat/mpresolve/internal/exitcode"
	"github.com/uniplat/mpresolve/internal/logger"
)

// Returned when the problem was already logged
var errReported = errors.New("failed")

func main() {
	err := rootCmd.Execute()
	if current != nil {
		current.log.Done()
	}
	if err != nil {
		if !errors.Is(err, errReported) {
			logger.PrintErrorToStderr(os.Args, err.Error())
		}
		os.Exit(exitcode.Get(err))
	}
}
