package message

import (
	"github.com/gmondada/mdnsd/internal/errors"
	"github.com/gmondada/mdnsd/internal/protocol"
)

// Builder assembles a DNS message into a caller-provided buffer,
// one question or resource record at a time. Entries must be added in
// category order — questions, then answers, then authority records,
// then additional records — mirroring the fixed section layout of the
// wire format; Builder panics if a caller tries to add an entry out of
// order, since that can only be a bug in the caller, never a symptom of
// bad network input.
//
// Every Add* method is transactional: either the entry fits and the
// corresponding header count is incremented, or nothing is written and
// the builder's size is left exactly as it was. This is what lets the
// query processor and emitter roll a message back to an earlier size
// when a record will not fit, without having to track a separate undo
// log.
type Builder struct {
	data       []byte
	max        int
	size       int
	counterPos int // header offset of the count field for the current category
}

// NewBuilder prepares a Builder writing into data, whose header is
// stamped with id and flags. len(data) must be at least
// protocol.HeaderSize; Add* methods will never write past max bytes.
func NewBuilder(data []byte, max int, id uint16, flags uint16) *Builder {
	if max < protocol.HeaderSize {
		errors.Fatal("builder buffer capacity %d smaller than header", max)
	}
	for i := 0; i < protocol.HeaderSize; i++ {
		data[i] = 0
	}
	setU16(data, 0, id)
	setU16(data, 2, flags)
	return &Builder{
		data:       data,
		max:        max,
		size:       protocol.HeaderSize,
		counterPos: 4,
	}
}

// Size returns the number of bytes written so far, or 0 if nothing
// beyond the header has been added — a zero-size result tells a caller
// driving a retry loop that this message carries nothing worth sending.
func (b *Builder) Size() int {
	if b.size <= protocol.HeaderSize {
		return 0
	}
	return b.size
}

// SetCategory moves the builder to category, which must not be earlier
// than whatever category is currently in effect. Add* methods call this
// automatically when necessary; callers only need it to skip an empty
// category (e.g. to move straight from questions to additional records
// with no answers in between).
func (b *Builder) SetCategory(category protocol.Category) {
	var pos int
	switch category {
	case protocol.CategoryQuestion:
		pos = 4
	case protocol.CategoryAnswer:
		pos = 6
	case protocol.CategoryAuthority:
		pos = 8
	case protocol.CategoryAdditional:
		pos = 10
	default:
		errors.Fatal("bad record category %d", category)
	}
	if pos < b.counterPos {
		errors.Fatal("record categories added out of order")
	}
	b.counterPos = pos
}

func (b *Builder) count() uint16 {
	return getU16(b.data, b.counterPos)
}

// AddQuestion appends a question entry. name must already be in
// canonical wire form (see EncodeName / DecodeName).
func (b *Builder) AddQuestion(name []byte, qtype protocol.RRType, unicastResponse bool) bool {
	if b.counterPos != 4 {
		b.SetCategory(protocol.CategoryQuestion)
	}
	count := b.count()
	if b.size+len(name)+4 > b.max {
		return false
	}
	setU16(b.data, 4, count+1)
	i := b.size
	copy(b.data[i:], name)
	i += len(name)
	setU16(b.data, i, uint16(qtype))
	i += 2
	class := uint16(protocol.ClassIN)
	if unicastResponse {
		class |= protocol.ClassCacheFlush
	}
	setU16(b.data, i, class)
	i += 2
	b.size = i
	return true
}

func (b *Builder) beginRR() {
	if b.counterPos < 6 {
		b.SetCategory(protocol.CategoryAnswer)
	}
}

func (b *Builder) classField(cacheFlush bool) uint16 {
	class := uint16(protocol.ClassIN)
	if cacheFlush {
		class |= protocol.ClassCacheFlush
	}
	return class
}

// AddAddress appends an A or AAAA record. addr must be 4 bytes for
// TypeA or 16 bytes for TypeAAAA.
func (b *Builder) AddAddress(name []byte, rtype protocol.RRType, cacheFlush bool, ttl uint32, addr []byte) bool {
	b.beginRR()
	count := b.count()
	if b.size+len(name)+10+len(addr) > b.max {
		return false
	}
	setU16(b.data, b.counterPos, count+1)
	i := b.size
	copy(b.data[i:], name)
	i += len(name)
	setU16(b.data, i, uint16(rtype))
	i += 2
	setU16(b.data, i, b.classField(cacheFlush))
	i += 2
	setU32(b.data, i, ttl)
	i += 4
	setU16(b.data, i, uint16(len(addr)))
	i += 2
	copy(b.data[i:], addr)
	i += len(addr)
	b.size = i
	return true
}

// AddName appends a resource record whose rdata is itself a single
// domain name — PTR, NS, or CNAME.
func (b *Builder) AddName(name []byte, rtype protocol.RRType, cacheFlush bool, ttl uint32, target []byte) bool {
	b.beginRR()
	count := b.count()
	if b.size+len(name)+10+len(target) > b.max {
		return false
	}
	setU16(b.data, b.counterPos, count+1)
	i := b.size
	copy(b.data[i:], name)
	i += len(name)
	setU16(b.data, i, uint16(rtype))
	i += 2
	setU16(b.data, i, b.classField(cacheFlush))
	i += 2
	setU32(b.data, i, ttl)
	i += 4
	setU16(b.data, i, uint16(len(target)))
	i += 2
	copy(b.data[i:], target)
	i += len(target)
	b.size = i
	return true
}

// AddTXT appends a TXT record whose rdata is already-encoded character
// strings (each prefixed with its own length byte, per RFC 1035 §3.3).
func (b *Builder) AddTXT(name []byte, cacheFlush bool, ttl uint32, txt []byte) bool {
	b.beginRR()
	count := b.count()
	if b.size+len(name)+10+len(txt) > b.max {
		return false
	}
	setU16(b.data, b.counterPos, count+1)
	i := b.size
	copy(b.data[i:], name)
	i += len(name)
	setU16(b.data, i, uint16(protocol.TypeTXT))
	i += 2
	setU16(b.data, i, b.classField(cacheFlush))
	i += 2
	setU32(b.data, i, ttl)
	i += 4
	setU16(b.data, i, uint16(len(txt)))
	i += 2
	copy(b.data[i:], txt)
	i += len(txt)
	b.size = i
	return true
}

// AddSRV appends an SRV record.
func (b *Builder) AddSRV(name []byte, cacheFlush bool, ttl uint32, priority, weight, port uint16, host []byte) bool {
	b.beginRR()
	count := b.count()
	if b.size+len(name)+16+len(host) > b.max {
		return false
	}
	setU16(b.data, b.counterPos, count+1)
	i := b.size
	copy(b.data[i:], name)
	i += len(name)
	setU16(b.data, i, uint16(protocol.TypeSRV))
	i += 2
	setU16(b.data, i, b.classField(cacheFlush))
	i += 2
	setU32(b.data, i, ttl)
	i += 4
	setU16(b.data, i, uint16(len(host)+6))
	i += 2
	setU16(b.data, i, priority)
	i += 2
	setU16(b.data, i, weight)
	i += 2
	setU16(b.data, i, port)
	i += 2
	copy(b.data[i:], host)
	i += len(host)
	b.size = i
	return true
}

// reverseBitOrder reverses the bit order of a byte, matching the
// MSB-first numbering RFC 4034 §4.1.2 uses for an NSEC type bitmap: bit
// 0 of the bitmap is the most significant bit of the first byte.
func reverseBitOrder(b uint8) uint8 {
	var out uint8
	for i := 0; i < 8; i++ {
		out <<= 1
		out |= b & 1
		b >>= 1
	}
	return out
}

// AddSingleDomainNSEC appends an NSEC record in the "single domain"
// form RFC 6762 §6.1 uses for negative responses: it asserts the exact
// set of record types present for name and nothing else (the "next
// domain name" field is name itself). typeMask has bit N set, counting
// from bit 0, when a record of type N exists for this owner name
// (type numbers below 64 only — mdnsd has no record type at or above
// 64, so this is never a limitation in practice).
func (b *Builder) AddSingleDomainNSEC(name []byte, cacheFlush bool, ttl uint32, typeMask uint64) bool {
	nbytes := 1
	for i := 0; i < 8; i++ {
		if (typeMask>>(i*8))&0xff != 0 {
			nbytes = i + 1
		}
	}

	b.beginRR()
	count := b.count()
	if b.size+len(name)+10+len(name)+2+nbytes > b.max {
		return false
	}
	setU16(b.data, b.counterPos, count+1)
	i := b.size
	copy(b.data[i:], name)
	i += len(name)
	setU16(b.data, i, uint16(protocol.TypeNSEC))
	i += 2
	setU16(b.data, i, b.classField(cacheFlush))
	i += 2
	setU32(b.data, i, ttl)
	i += 4
	setU16(b.data, i, uint16(len(name)+2+nbytes))
	i += 2
	copy(b.data[i:], name)
	i += len(name)
	setU8(b.data, i, 0) // window block 0
	i++
	setU8(b.data, i, uint8(nbytes))
	i++
	for j := 0; j < nbytes; j++ {
		setU8(b.data, i, reverseBitOrder(uint8(typeMask>>(j*8))))
		i++
	}
	b.size = i
	return true
}
