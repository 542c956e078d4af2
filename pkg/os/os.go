// Package os has the process helpers of the camstream commands.
package os

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
)

// EnsureDir makes the directory with its parents unless it is there.
func EnsureDir(path string) error {
	fi, err := os.Stat(path)
	switch {
	case err == nil && fi.IsDir():
		return nil
	case err == nil:
		return fmt.Errorf("%s is not a directory", path)
	case errors.Is(err, fs.ErrNotExist):
		return os.MkdirAll(path, 0o755)
	default:
		return err
	}
}

// ExpectTermination delivers the interrupt or termination signal
// the process gets.
func ExpectTermination() <-chan os.Signal {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	return signals
}
