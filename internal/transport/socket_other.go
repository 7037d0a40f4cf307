//go:build !linux

package transport

import "syscall"

// reusePortControl is a no-op on platforms where golang.org/x/sys/unix
// doesn't expose SO_REUSEPORT (or mdnsd has not been exercised there);
// the socket still binds, it just cannot share the port with another
// mDNS responder on the same host.
func reusePortControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
