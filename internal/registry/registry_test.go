package registry

import (
	"net"
	"testing"

	"github.com/gmondada/mdnsd/internal/message"
	"github.com/gmondada/mdnsd/internal/protocol"
)

func TestBuildHostAndServiceDomains(t *testing.T) {
	db, err := Build("printer-host", []net.IP{net.IPv4(192, 0, 2, 10)}, []Instance{
		{Name: "Gabriele's Printer", ServiceType: "_ipp._tcp", Port: 631, TXT: map[string]string{"txtvers": "1"}},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	hostName, _ := message.EncodeName("printer-host.local")
	hostDomain := db.Lookup(hostName)
	if hostDomain == nil {
		t.Fatal("expected host domain to exist")
	}
	if !hostDomain.HasType(protocol.TypeA) {
		t.Fatal("expected host domain to have an A record")
	}
	if !hostDomain.HasType(protocol.TypeNSEC) {
		t.Fatal("expected host domain to have an NSEC record")
	}

	instName, _ := message.EncodeName("Gabriele's Printer._ipp._tcp.local")
	instDomain := db.Lookup(instName)
	if instDomain == nil {
		t.Fatal("expected service instance domain to exist")
	}
	if !instDomain.HasType(protocol.TypeSRV) || !instDomain.HasType(protocol.TypeTXT) {
		t.Fatal("expected SRV and TXT records on the instance domain")
	}

	serviceTypeName, _ := message.EncodeName("_ipp._tcp.local")
	serviceDomain := db.Lookup(serviceTypeName)
	if serviceDomain == nil {
		t.Fatal("expected service type domain to exist")
	}
	if len(serviceDomain.Records) != 1 || serviceDomain.Records[0].Type != protocol.TypePTR {
		t.Fatalf("expected exactly one PTR record on the service type domain, got %+v", serviceDomain.Records)
	}

	enumName, _ := message.EncodeName(EnumerationDomain)
	enumDomain := db.Lookup(enumName)
	if enumDomain == nil {
		t.Fatal("expected enumeration domain to exist once a service is registered")
	}
}

func TestBuildRejectsBadServiceType(t *testing.T) {
	_, err := Build("host", nil, []Instance{{Name: "x", ServiceType: "not-a-service-type", Port: 80}})
	if err == nil {
		t.Fatal("expected error for malformed service type")
	}
}

func TestBuildTXTEmptyIsSingleZeroByte(t *testing.T) {
	got := buildTXT(nil)
	if len(got) != 1 || got[0] != 0 {
		t.Fatalf("empty TXT = %v, want [0]", got)
	}
}

func TestManagerRegisterAndSnapshot(t *testing.T) {
	m := NewManager("host")
	if err := m.Register(Instance{Name: "a", ServiceType: "_http._tcp", Port: 80}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(Instance{Name: "b", ServiceType: "_http._tcp", Port: 81}); err != nil {
		t.Fatalf("register: %v", err)
	}
	snap := m.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot len = %d, want 2", len(snap))
	}
	m.Unregister("a", "_http._tcp")
	snap = m.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot len after unregister = %d, want 1", len(snap))
	}
}

func TestManagerRegisterRejectsZeroPort(t *testing.T) {
	m := NewManager("host")
	if err := m.Register(Instance{Name: "a", ServiceType: "_http._tcp", Port: 0}); err == nil {
		t.Fatal("expected error for zero port")
	}
}
