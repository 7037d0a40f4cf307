// Package server is the mDNS responder's C8 shell: it wires
// internal/transport's interface and datagram callbacks to
// internal/query's processor and emitter, and internal/registry's
// manager to the per-interface record databases those consume.
//
// Grounded on bj_server.cpp's Bj_server: rx_begin_handler /
// rx_data_handler / rx_end_handler / send_unsolicited_announcements.
package server

import (
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/gmondada/mdnsd/internal/message"
	"github.com/gmondada/mdnsd/internal/protocol"
	"github.com/gmondada/mdnsd/internal/query"
	"github.com/gmondada/mdnsd/internal/records"
	"github.com/gmondada/mdnsd/internal/registry"
	"github.com/gmondada/mdnsd/internal/transport"
)

// mdnsMsgSizeMax mirrors spec.md §6's absolute per-datagram ceiling.
const mdnsMsgSizeMax = 9000

// Server is the running mDNS responder for one host: it owns the
// transport listener, tracks one record database per live network
// interface, and answers queries against them.
type Server struct {
	log     *zap.Logger
	manager *registry.Manager

	listener *transport.Listener

	mu     sync.Mutex
	ifaces map[int]ifaceState
}

type ifaceState struct {
	addresses []net.IP
	db        *records.Database
	ideal     int
	max       int
}

// New creates a Server that publishes the service instances registered
// with manager. Start must be called before it answers any queries.
func New(manager *registry.Manager, opts ...Option) *Server {
	s := &Server{
		log:     zap.NewNop(),
		manager: manager,
		ifaces:  make(map[int]ifaceState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the mDNS socket, joins the multicast group on every live
// interface, and begins answering queries. It returns once the listener
// is bound; receiving and interface polling happen on background
// goroutines until Stop is called.
func (s *Server) Start() error {
	listener, err := transport.NewListener(s.log, s)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := listener.Run(); err != nil {
			s.log.Warn("listener stopped", zap.Error(err))
		}
	}()

	return nil
}

// Stop sends a goodbye (TTL=0) announcement for every published service
// on every interface, then leaves the multicast group and closes the
// socket.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	s.announce(true)
	return s.listener.Close()
}

// RegisterService adds or replaces a published service instance, rebuilds
// every interface's database to include it, and sends an unsolicited
// announcement of its PTR record on every interface.
func (s *Server) RegisterService(inst registry.Instance) error {
	if err := s.manager.Register(inst); err != nil {
		return err
	}
	s.rebuildAll()
	s.announce(false)
	return nil
}

// UnregisterService withdraws a published service instance, rebuilds
// every interface's database, and sends a goodbye (TTL=0) announcement
// of its former PTR record so peers evict it from their caches promptly.
func (s *Server) UnregisterService(name, serviceType string) {
	s.manager.Unregister(name, serviceType)
	s.rebuildAll()
	s.announce(true)
}

// RxBegin implements transport.Handler: a new interface has joined the
// multicast group. It builds that interface's database and announces its
// service PTR records, mirroring bj_server.cpp's rx_begin_handler.
func (s *Server) RxBegin(iface transport.Interface) {
	db, err := registry.Build(s.manager.HostName(), iface.Addresses, s.manager.Snapshot())
	if err != nil {
		s.log.Warn("could not build database for interface", zap.String("interface", iface.Name), zap.Error(err))
		return
	}

	ideal, max := transport.IdealAndMaxSize(iface.MTU)

	s.mu.Lock()
	s.ifaces[iface.Index] = ifaceState{addresses: iface.Addresses, db: db, ideal: ideal, max: max}
	s.mu.Unlock()

	s.log.Debug("interface joined", zap.String("interface", iface.Name), zap.Int("index", iface.Index))
	s.announce(false)
}

// RxData implements transport.Handler: dispatches an incoming datagram to
// a freshly-initialized query processor and pumps its emitter until
// exhaustion, mirroring bj_server.cpp's rx_data_handler.
func (s *Server) RxData(ifaceIndex int, data []byte, reply func([]byte) error) {
	s.mu.Lock()
	state, ok := s.ifaces[ifaceIndex]
	s.mu.Unlock()
	if !ok {
		return
	}

	s.log.Debug("received datagram", zap.Int("interface", ifaceIndex), zap.String("msg", message.Dump(data)))

	proc := query.NewProcessor(data, state.db)
	for {
		outMsg := make([]byte, mdnsMsgSizeMax)
		n := proc.Run(outMsg, state.ideal, state.max)
		if n == 0 {
			break
		}
		out := outMsg[:n]
		s.log.Debug("sending reply", zap.Int("interface", ifaceIndex), zap.String("msg", message.Dump(out)))
		if err := reply(out); err != nil {
			s.log.Warn("reply failed", zap.Int("interface", ifaceIndex), zap.Error(err))
			return
		}
	}
}

// RxEnd implements transport.Handler: an interface has left the
// multicast group. Its per-interface database is dropped.
func (s *Server) RxEnd(ifaceIndex int) {
	s.mu.Lock()
	delete(s.ifaces, ifaceIndex)
	s.mu.Unlock()
	s.log.Debug("interface left", zap.Int("interface", ifaceIndex))
}

// rebuildAll recomputes every live interface's database from the
// manager's current snapshot, reusing each interface's own addresses
// (those only change via RxBegin/RxEnd).
func (s *Server) rebuildAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for index, state := range s.ifaces {
		db, err := registry.Build(s.manager.HostName(), state.addresses, s.manager.Snapshot())
		if err != nil {
			s.log.Warn("could not rebuild database", zap.Int("interface", index), zap.Error(err))
			continue
		}
		state.db = db
		s.ifaces[index] = state
	}
}

// announce sends the PTR records of every registered service as one
// unsolicited announcement per interface, sized by the smallest ideal/max
// among live interfaces, mirroring bj_server.cpp's
// send_unsolicited_announcements, which also always broadcasts through
// the network collaborator's single send(bytes) primitive regardless of
// which interface triggered it.
func (s *Server) announce(tearDown bool) {
	s.mu.Lock()
	var ideal, max int
	var db *records.Database
	for _, state := range s.ifaces {
		db = state.db
		if ideal == 0 || state.ideal < ideal {
			ideal = state.ideal
		}
		if max == 0 || state.max < max {
			max = state.max
		}
	}
	s.mu.Unlock()

	if db == nil || s.listener == nil {
		return
	}

	var ptrRecords []*records.Record
	for _, domain := range db.Domains() {
		for _, record := range domain.Records {
			if record.Type == protocol.TypePTR {
				ptrRecords = append(ptrRecords, record)
			}
		}
	}
	if len(ptrRecords) == 0 {
		return
	}

	announcer := query.NewAnnouncer(ptrRecords, tearDown)
	for {
		outMsg := make([]byte, mdnsMsgSizeMax)
		n := announcer.Run(outMsg, ideal, max)
		if n == 0 {
			break
		}
		out := outMsg[:n]
		s.log.Debug("sending announcement", zap.Bool("tear_down", tearDown), zap.String("msg", message.Dump(out)))
		if err := s.listener.Send(out); err != nil {
			s.log.Warn("announcement send failed", zap.Error(err))
			return
		}
	}
}
