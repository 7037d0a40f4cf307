package query

import (
	"strings"
	"testing"

	"github.com/gmondada/mdnsd/internal/message"
	"github.com/gmondada/mdnsd/internal/protocol"
	"github.com/gmondada/mdnsd/internal/records"
)

// Scenario 6: unsolicited announcement of two service PTRs in one
// datagram with the expected response header flags.
func TestUnsolicitedAnnouncement(t *testing.T) {
	serviceName := mustName(t, "_service1._udp.local")
	instA := mustName(t, "A._service1._udp.local")
	instB := mustName(t, "B._service1._udp.local")

	recA := &records.Record{Type: protocol.TypePTR, TTL: protocol.TTLServicePTR, Name: instA}
	recB := &records.Record{Type: protocol.TypePTR, TTL: protocol.TTLServicePTR, Name: instB}
	records.NewDomain(serviceName, recA, recB)

	announcer := NewAnnouncer([]*records.Record{recA, recB}, false)
	out := make([]byte, protocol.MaxMessageSize)
	n := announcer.Run(out, 1452, 8972)
	if n == 0 {
		t.Fatal("expected one announcement datagram")
	}
	msg := out[:n]

	r, err := message.NewReader(msg)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.Flags() != protocol.FlagQR|protocol.FlagAA {
		t.Errorf("flags = 0x%04x, want 0x%04x", r.Flags(), protocol.FlagQR|protocol.FlagAA)
	}
	if got := countRecordsOfType(t, msg, protocol.TypePTR); got != 2 {
		t.Fatalf("PTR answers = %d, want 2", got)
	}

	if n2 := announcer.Run(out, 1452, 8972); n2 != 0 {
		t.Fatalf("expected no further datagram, got %d bytes", n2)
	}
}

// A record too big to fit even at maxSize must not swallow the retry
// chance of the record right after it: once the oversized record is
// discarded, the message still has nothing written to it, so the next
// record gets the same "retry at maxSize" treatment the first record in
// the list would.
func TestEmitterRetriesMaxSizeAfterDiscardingOversizedRecord(t *testing.T) {
	// rec1 does not fit idealSize or maxSize and is discarded outright.
	owner1 := mustName(t, strings.Repeat("a", 52)+".local")
	target1 := mustName(t, strings.Repeat("b", 52)+".local")
	rec1 := &records.Record{Type: protocol.TypePTR, TTL: protocol.TTLServicePTR, Name: target1}
	records.NewDomain(owner1, rec1)

	// rec2 does not fit idealSize but does fit maxSize.
	owner2 := mustName(t, strings.Repeat("c", 17)+".local")
	target2 := mustName(t, strings.Repeat("d", 22)+".local")
	rec2 := &records.Record{Type: protocol.TypePTR, TTL: protocol.TTLServicePTR, Name: target2}
	records.NewDomain(owner2, rec2)

	announcer := NewAnnouncer([]*records.Record{rec1, rec2}, false)
	out := make([]byte, protocol.MaxMessageSize)

	n := announcer.Run(out, 64, 100)
	if n == 0 {
		t.Fatal("expected rec2 to be retried and fit at maxSize, got no datagram")
	}
	if got := countRecordsOfType(t, out[:n], protocol.TypePTR); got != 1 {
		t.Fatalf("PTR answers = %d, want 1 (rec2 only, rec1 discarded)", got)
	}

	if n2 := announcer.Run(out, 64, 100); n2 != 0 {
		t.Fatalf("expected no further datagram, got %d bytes", n2)
	}
}

// P10: tear-down mode forces every emitted record's TTL to 0.
func TestAnnouncerTearDownForcesZeroTTL(t *testing.T) {
	name := mustName(t, "Goodbye._service1._udp.local")
	rec := &records.Record{Type: protocol.TypePTR, TTL: protocol.TTLServicePTR, Name: name}
	records.NewDomain(name, rec)

	announcer := NewAnnouncer([]*records.Record{rec}, true)
	out := make([]byte, protocol.MaxMessageSize)
	n := announcer.Run(out, 1452, 8972)
	if n == 0 {
		t.Fatal("expected a goodbye datagram")
	}

	r, err := message.NewReader(out[:n])
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	entry, err := r.Entry(r.QuestionCount)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if entry.TTL() != 0 {
		t.Errorf("TTL = %d, want 0 in tear-down mode", entry.TTL())
	}
}
