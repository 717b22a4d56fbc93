package fleet

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setReuseAddr is the net.ListenConfig.Control hook that enables
// SO_REUSEADDR on every listening socket, so rapid restarts during
// client-test iteration do not stall on TIME_WAIT.
func setReuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
