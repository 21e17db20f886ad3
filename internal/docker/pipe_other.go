//go:build !windows

package docker

import (
	"errors"
	"time"
)

// checkPipe is only reachable on Windows.
func checkPipe(string, time.Duration) error {
	return errors.New("named pipes are only supported on Windows")
}
