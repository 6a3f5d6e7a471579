//go:build linux

package listener

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlFor returns the socket Control function applying SO_REUSEADDR
// always, SO_REUSEPORT when reusePort is set, and IP_TRANSPARENT when
// opts.Transparent is set — matching listener.cpp's Linux branch.
func controlFor(reusePort bool, opts Options) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
				ctrlErr = e
				return
			}
			if reusePort {
				if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
					ctrlErr = e
					return
				}
			}
			if opts.Transparent {
				if e := unix.SetsockoptInt(int(fd), unix.SOL_IP, unix.IP_TRANSPARENT, 1); e != nil {
					ctrlErr = e
					return
				}
			}
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}
}
