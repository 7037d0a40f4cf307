package message

import (
	"sort"
	"testing"

	"github.com/gmondada/mdnsd/internal/protocol"
)

func TestBuilderAddAddress(t *testing.T) {
	buf := make([]byte, 64)
	b := NewBuilder(buf, len(buf), 1, protocol.FlagQR)
	name, _ := EncodeName("host.local")
	if !b.AddAddress(name, protocol.TypeA, true, protocol.TTLHostAddress, []byte{192, 0, 2, 1}) {
		t.Fatal("add address failed")
	}
	if b.Size() == 0 {
		t.Fatal("expected non-zero size")
	}

	r, err := NewReader(buf[:b.Size()])
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	entry, err := r.Entry(0)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if entry.Type() != protocol.TypeA {
		t.Fatalf("type = %v, want A", entry.Type())
	}
	if !entry.CacheFlush() {
		t.Fatal("expected cache-flush bit set")
	}
	if entry.TTL() != protocol.TTLHostAddress {
		t.Fatalf("ttl = %d, want %d", entry.TTL(), protocol.TTLHostAddress)
	}
	rdata := entry.RData()
	if len(rdata) != 4 || rdata[3] != 1 {
		t.Fatalf("rdata = %v", rdata)
	}
}

func TestBuilderCategoryOrderPanics(t *testing.T) {
	buf := make([]byte, 64)
	b := NewBuilder(buf, len(buf), 0, 0)
	name, _ := EncodeName("host.local")
	b.AddAddress(name, protocol.TypeA, false, 120, []byte{1, 2, 3, 4})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic adding a question after an answer")
		}
	}()
	b.SetCategory(protocol.CategoryQuestion)
}

func TestBuilderRollsBackOnOverflow(t *testing.T) {
	buf := make([]byte, protocol.HeaderSize+23) // room for exactly one small A record
	b := NewBuilder(buf, len(buf), 0, 0)
	name, _ := EncodeName("a.local")
	if !b.AddAddress(name, protocol.TypeA, false, 120, []byte{1, 2, 3, 4}) {
		t.Fatal("first record should fit")
	}
	sizeAfterFirst := b.Size()

	if b.AddAddress(name, protocol.TypeA, false, 120, []byte{5, 6, 7, 8}) {
		t.Fatal("second record should not fit")
	}
	if b.Size() != sizeAfterFirst {
		t.Fatalf("size changed after failed add: got %d, want %d", b.Size(), sizeAfterFirst)
	}
}

func TestBuilderSingleDomainNSEC(t *testing.T) {
	buf := make([]byte, 128)
	b := NewBuilder(buf, len(buf), 0, 0)
	name, _ := EncodeName("host.local")
	// bit for A (type 1) and AAAA (type 28); bit index equals the
	// record type number, matching the wire bitmap's type-to-bit mapping.
	mask := uint64(1) << protocol.TypeA
	mask |= uint64(1) << protocol.TypeAAAA
	if !b.AddSingleDomainNSEC(name, true, protocol.TTLNSEC, mask) {
		t.Fatal("add nsec failed")
	}
	r, err := NewReader(buf[:b.Size()])
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	entry, err := r.Entry(0)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if entry.Type() != protocol.TypeNSEC {
		t.Fatalf("type = %v, want NSEC", entry.Type())
	}
}

// TestBuilderSingleDomainNSECBitmap decodes the raw RDATA window block
// AddSingleDomainNSEC writes and checks that the exact set of present
// types round-trips through reverseBitOrder's MSB-first byte layout.
func TestBuilderSingleDomainNSECBitmap(t *testing.T) {
	buf := make([]byte, 128)
	b := NewBuilder(buf, len(buf), 0, 0)
	name, _ := EncodeName("host.local")

	want := []protocol.RRType{protocol.TypeA, protocol.TypeAAAA, protocol.TypeSRV}
	var mask uint64
	for _, rtype := range want {
		mask |= uint64(1) << uint(rtype)
	}
	if !b.AddSingleDomainNSEC(name, true, protocol.TTLNSEC, mask) {
		t.Fatal("add nsec failed")
	}

	r, err := NewReader(buf[:b.Size()])
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	entry, err := r.Entry(0)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	rdata := entry.RData()

	nameLen, err := NameLength(rdata)
	if err != nil {
		t.Fatalf("name length in rdata: %v", err)
	}
	if window := rdata[nameLen]; window != 0 {
		t.Fatalf("window block = %d, want 0", window)
	}
	bitmapLen := int(rdata[nameLen+1])
	bitmap := rdata[nameLen+2 : nameLen+2+bitmapLen]

	var got []protocol.RRType
	for i, byteVal := range bitmap {
		for bit := 0; bit < 8; bit++ {
			if byteVal&(0x80>>uint(bit)) != 0 {
				got = append(got, protocol.RRType(i*8+bit))
			}
		}
	}

	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	if len(got) != len(want) {
		t.Fatalf("decoded types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("decoded types = %v, want %v", got, want)
		}
	}
}
