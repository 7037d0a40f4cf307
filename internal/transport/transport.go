// Package transport joins the mDNS multicast group on every live network
// interface, delivers received datagrams and interface arrival/departure
// events to a Handler, and sends outgoing datagrams back to the group.
//
// This is the "external network collaborator" spec.md places out of the
// core's scope: the core (internal/query) never opens a socket, and
// internal/transport never parses a DNS message.
package transport

import "net"

// Interface describes one live network interface the Listener has joined
// the mDNS multicast group on.
type Interface struct {
	Index     int
	Name      string
	Addresses []net.IP
	MTU       int
}

// Handler receives the Listener's interface and datagram events. RxData
// is called from the Listener's receive loop; RxBegin and RxEnd are
// called from its interface poller, which runs on its own goroutine, and
// RxEnd also from Close. The methods can therefore run concurrently with
// each other, and an implementation must guard its own shared state.
type Handler interface {
	// RxBegin is called once when iface first becomes usable: its
	// multicast group membership has been joined and its addresses are
	// known.
	RxBegin(iface Interface)

	// RxData is called once per datagram received on ifaceIndex. reply
	// sends a datagram back to the multicast group on that interface;
	// the handler may call it any number of times (including zero)
	// before RxData returns.
	RxData(ifaceIndex int, data []byte, reply func([]byte) error)

	// RxEnd is called once when iface stops being usable (its addresses
	// vanished or the interface itself disappeared).
	RxEnd(ifaceIndex int)
}

// Sender sends a datagram to the mDNS multicast group on every interface
// the Listener currently has joined, for unsolicited announcements and
// goodbye packets that are not responses to any particular query.
type Sender interface {
	Send(data []byte) error
}
