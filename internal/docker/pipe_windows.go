//go:build windows

package docker

import (
	"time"

	"github.com/Microsoft/go-winio"
)

// checkPipe dials the named pipe at path and hangs up at once.
func checkPipe(path string, timeout time.Duration) error {
	conn, err := winio.DialPipe(path, &timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}
