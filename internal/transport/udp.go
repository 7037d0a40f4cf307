package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/gmondada/mdnsd/internal/errors"
	"github.com/gmondada/mdnsd/internal/protocol"
)

// ipHeaderSize and udpHeaderSize are subtracted from a path MTU to get the
// mDNS payload budget spec.md §6 describes, in the common case of no IP
// options.
const (
	ipHeaderSize  = 20
	udpHeaderSize = 8
)

// defaultMTU is used for an interface whose reported MTU is zero or
// unavailable, matching a typical Ethernet link.
const defaultMTU = 1500

// pollInterval is how often the Listener re-reads net.Interfaces() to
// notice interfaces appearing or disappearing. bj_net_interface_database.cpp
// uses an OS netlink/route socket for this; net.Interfaces() polling is the
// portable Go equivalent the teacher's own specs/007-interface-specific-
// addressing design note anticipates for non-Linux targets.
const pollInterval = 5 * time.Second

// Listener joins the mDNS multicast group on every live IPv4-capable
// network interface, delivers datagrams and interface-lifecycle events to
// a Handler, and implements Sender to flood outgoing datagrams back to the
// group on every interface currently joined.
type Listener struct {
	log *zap.Logger

	conn     *net.UDPConn
	pktConn  *ipv4.PacketConn
	groupUDP *net.UDPAddr
	groupNet net.Addr

	handler Handler

	mu      sync.Mutex
	joined  map[int]net.Interface // ifIndex -> interface currently joined
	closing bool

	stop chan struct{}
	done chan struct{}
}

// NewListener opens the mDNS UDP socket, binds it to port 5353, and
// prepares to join the multicast group per interface. It does not start
// receiving until Run is called.
func NewListener(log *zap.Logger, handler Handler) (*Listener, error) {
	if log == nil {
		log = zap.NewNop()
	}

	groupUDP, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(protocol.MulticastAddrIPv4, strconv.Itoa(protocol.Port)))
	if err != nil {
		return nil, &errors.NetworkError{Operation: "resolve multicast address", Err: err}
	}

	listenConfig := net.ListenConfig{Control: reusePortControl}
	packetConn, err := listenConfig.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", protocol.Port))
	if err != nil {
		return nil, &errors.NetworkError{Operation: "bind udp socket", Err: err, Details: fmt.Sprintf("port %d", protocol.Port)}
	}
	conn := packetConn.(*net.UDPConn)

	pktConn := ipv4.NewPacketConn(conn)
	if err := pktConn.SetControlMessage(ipv4.FlagInterface|ipv4.FlagDst, true); err != nil {
		log.Warn("could not enable control messages, interface index on receive will be unavailable", zap.Error(err))
	}

	return &Listener{
		log:      log,
		conn:     conn,
		pktConn:  pktConn,
		groupUDP: groupUDP,
		groupNet: groupUDP,
		handler:  handler,
		joined:   make(map[int]net.Interface),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Run joins every currently-live interface, starts polling for interface
// changes, and receives datagrams until Close is called. It blocks until
// the listener is closed.
func (l *Listener) Run() error {
	defer close(l.done)

	l.pollInterfaces()

	go l.pollLoop()

	buf := make([]byte, protocol.MaxMessageSize)
	for {
		n, cm, _, err := l.pktConn.ReadFrom(buf)
		if err != nil {
			select {
			case <-l.stop:
				return nil
			default:
			}
			l.log.Warn("receive failed", zap.Error(err))
			continue
		}

		ifIndex := 0
		if cm != nil {
			ifIndex = cm.IfIndex
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		l.handler.RxData(ifIndex, data, func(reply []byte) error {
			return l.sendOn(ifIndex, reply)
		})
	}
}

// Close stops the receive loop and the interface poller, leaves every
// joined multicast group, and closes the socket.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return nil
	}
	l.closing = true
	for ifIndex := range l.joined {
		l.handler.RxEnd(ifIndex)
	}
	l.joined = make(map[int]net.Interface)
	l.mu.Unlock()

	close(l.stop)
	err := l.conn.Close()
	<-l.done
	if err != nil {
		return &errors.NetworkError{Operation: "close socket", Err: err}
	}
	return nil
}

// Send transmits data to the multicast group on every interface currently
// joined, for unsolicited announcements (spec.md §4.8) that are not
// replies to any particular received datagram.
func (l *Listener) Send(data []byte) error {
	l.mu.Lock()
	indexes := make([]int, 0, len(l.joined))
	for ifIndex := range l.joined {
		indexes = append(indexes, ifIndex)
	}
	l.mu.Unlock()

	var firstErr error
	for _, ifIndex := range indexes {
		if err := l.sendOn(ifIndex, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *Listener) sendOn(ifIndex int, data []byte) error {
	cm := &ipv4.ControlMessage{IfIndex: ifIndex}
	if _, err := l.pktConn.WriteTo(data, cm, l.groupNet); err != nil {
		return &errors.NetworkError{Operation: "send datagram", Err: err, Details: fmt.Sprintf("interface %d", ifIndex)}
	}
	return nil
}

func (l *Listener) pollLoop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.pollInterfaces()
		}
	}
}

// pollInterfaces diffs the current OS interface set against the set of
// interfaces already joined, joining the multicast group on new
// multicast-capable interfaces and leaving it on ones that vanished.
func (l *Listener) pollInterfaces() {
	ifaces, err := net.Interfaces()
	if err != nil {
		l.log.Warn("could not enumerate network interfaces", zap.Error(err))
		return
	}

	seen := make(map[int]bool, len(ifaces))
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, addresses := ipv4Addresses(ifi)
		if len(addrs) == 0 {
			continue
		}
		seen[ifi.Index] = true

		l.mu.Lock()
		_, joined := l.joined[ifi.Index]
		l.mu.Unlock()
		if joined {
			continue
		}

		if err := l.pktConn.JoinGroup(&ifi, l.groupUDP); err != nil {
			l.log.Warn("could not join multicast group on interface", zap.String("interface", ifi.Name), zap.Error(err))
			continue
		}

		l.mu.Lock()
		l.joined[ifi.Index] = ifi
		l.mu.Unlock()

		mtu := ifi.MTU
		if mtu <= 0 {
			mtu = defaultMTU
		}
		l.handler.RxBegin(Interface{Index: ifi.Index, Name: ifi.Name, Addresses: addresses, MTU: mtu})
	}

	l.mu.Lock()
	var departed []net.Interface
	for ifIndex, ifi := range l.joined {
		if !seen[ifIndex] {
			departed = append(departed, ifi)
			delete(l.joined, ifIndex)
		}
	}
	l.mu.Unlock()

	for _, ifi := range departed {
		if err := l.pktConn.LeaveGroup(&ifi, l.groupUDP); err != nil {
			l.log.Warn("could not leave multicast group on interface", zap.String("interface", ifi.Name), zap.Error(err))
		}
		l.handler.RxEnd(ifi.Index)
	}
}

// ipv4Addresses returns ifi's IPv4 addresses, both as net.Addr (so
// pollInterfaces can skip interfaces without any) and as net.IP (for
// Handler.RxBegin).
func ipv4Addresses(ifi net.Interface) ([]net.Addr, []net.IP) {
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, nil
	}
	var v4Addrs []net.Addr
	var ips []net.IP
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			v4Addrs = append(v4Addrs, a)
			ips = append(ips, v4)
		}
	}
	return v4Addrs, ips
}

// IdealAndMaxSize computes the preferred and absolute maximum mDNS payload
// sizes for a link of the given MTU, per spec.md §6.
func IdealAndMaxSize(mtu int) (ideal, max int) {
	headers := ipHeaderSize + udpHeaderSize
	ideal = protocol.MaxMessageSize
	if mtu < ideal {
		ideal = mtu
	}
	ideal -= headers
	max = protocol.MaxMessageSize - headers
	return ideal, max
}
