//go:build !linux

package listener

import "syscall"

// controlFor on non-Linux platforms applies no socket options beyond what
// net.ListenConfig already does; SO_REUSEPORT and IP_TRANSPARENT are
// Linux-specific (the original gates them the same way, falling back to
// SO_REUSEPORT_LB on FreeBSD, which this module does not target).
func controlFor(reusePort bool, opts Options) func(network, address string, c syscall.RawConn) error {
	if opts.Transparent {
		log.Warn("IP_TRANSPARENT requested but not supported on this platform")
	}
	return nil
}
