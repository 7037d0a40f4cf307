// Package protocol holds the wire-level constants shared by the message
// codec, the record database, and the query processor: port numbers,
// multicast addresses, header flag bits, resource record types and
// categories, and the TTL values mdnsd assigns to the records it
// publishes.
package protocol

// Port is the UDP port mDNS uses for both queries and responses.
const Port = 5353

// MulticastAddrIPv4 is the IPv4 multicast group mDNS queries and
// responses are sent to.
const MulticastAddrIPv4 = "224.0.0.251"

// HeaderSize is the fixed size, in bytes, of a DNS message header.
const HeaderSize = 12

// MaxMessageSize is the largest mDNS message mdnsd will ever build or
// accept, matching the ceiling used throughout RFC 6762 discussions of
// message size (and the original implementation's U2_MDNS_MSG_SIZE_MAX).
const MaxMessageSize = 9000

// MaxLabelLength is the largest a single DNS label may be.
const MaxLabelLength = 63

// MaxNameLength is the largest a full (wire-encoded) DNS name may be.
const MaxNameLength = 255

// Header flag bits.
const (
	FlagQR = 0x8000 // query/response bit
	FlagAA = 0x0400 // authoritative answer bit
)

// CompressionPointerMask identifies the top two bits that mark a label
// length byte as the first byte of a compression pointer rather than an
// ordinary label length.
const CompressionPointerMask = 0xc0

// RRType is a DNS resource record type.
type RRType uint16

const (
	TypeA     RRType = 1
	TypeNS    RRType = 2
	TypeCNAME RRType = 5
	TypePTR   RRType = 12
	TypeTXT   RRType = 16
	TypeAAAA  RRType = 28
	TypeSRV   RRType = 33
	TypeOPT   RRType = 41
	TypeNSEC  RRType = 47
	TypeANY   RRType = 255
)

func (t RRType) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeNS:
		return "NS"
	case TypeCNAME:
		return "CNAME"
	case TypePTR:
		return "PTR"
	case TypeTXT:
		return "TXT"
	case TypeAAAA:
		return "AAAA"
	case TypeSRV:
		return "SRV"
	case TypeOPT:
		return "OPT"
	case TypeNSEC:
		return "NSEC"
	case TypeANY:
		return "ANY"
	default:
		return "UNKNOWN"
	}
}

// ClassIN is the only DNS class mdnsd ever emits. The cache-flush bit
// (RFC 6762 §10.2) is carried in the top bit of the class field on
// resource records; on questions the same bit is the unicast-response
// (QU) request instead.
const ClassIN = 1

// ClassAny is the QCLASS value a question uses to match any class;
// mdnsd accepts it exactly like ClassIN since it only ever serves IN
// records anyway.
const ClassAny = 255

// ClassCacheFlush is the top bit of a resource record's class field,
// telling a receiver that this record set should replace, not
// supplement, any cached copy.
const ClassCacheFlush = 0x8000

// ClassMask strips the cache-flush bit from a class field.
const ClassMask = 0x7fff

// Category identifies which section of a DNS message an entry belongs
// to: a question, or a resource record in the answer, authority, or
// additional section. Categories are strictly ordered; a message
// builder may never append a lower category after a higher one.
type Category int

const (
	CategoryNone Category = iota
	CategoryQuestion
	CategoryAnswer
	CategoryAuthority
	CategoryAdditional
)

// TTL values mdnsd assigns by record type, following RFC 6762 §10 and
// the reference responder's own conventions: short-lived records name a
// specific host or service instance and may legitimately change
// (addresses, ports); the long-lived ones are enumeration and existence
// records that change far less often.
const (
	TTLHostAddress = 120  // A, AAAA
	TTLServiceSRV  = 120  // SRV
	TTLServiceTXT  = 4500 // TXT
	TTLServicePTR  = 4500 // PTR (service-type and enumeration domains)
	TTLNSEC        = 4500 // NSEC
)
