package message

import (
	"fmt"

	"github.com/gmondada/mdnsd/internal/errors"
	"github.com/gmondada/mdnsd/internal/protocol"
)

// Entry is a cursor onto one question or resource record within a
// message, produced by Reader.Entry. It carries only offsets into the
// reader's underlying buffer; decoding the owner name or rdata is left
// to the caller, via DecodeName and the RData* accessors, so that a
// caller that only needs to know an entry's type never pays for a name
// allocation it will not use.
type Entry struct {
	data       []byte
	Index      int
	IsQuestion bool
	NamePos    int
	TypePos    int // offset of the 2-byte type field
	RDataPos   int // resource records only
	RDataLen   int // resource records only
}

// Type returns the entry's question type or resource record type; the
// two fields share the same wire position.
func (e *Entry) Type() protocol.RRType {
	return protocol.RRType(getU16(e.data, e.TypePos))
}

// Class returns the entry's class with the cache-flush / unicast-response
// bit masked off.
func (e *Entry) Class() uint16 {
	return getU16(e.data, e.TypePos+2) & protocol.ClassMask
}

// UnicastResponseRequested reports whether a question's QU bit (top bit
// of the class field, RFC 6762 §5.4) is set. Meaningless for resource
// record entries.
func (e *Entry) UnicastResponseRequested() bool {
	return getU16(e.data, e.TypePos+2)&protocol.ClassCacheFlush != 0
}

// CacheFlush reports whether a resource record's cache-flush bit (RFC
// 6762 §10.2) is set. Meaningless for question entries.
func (e *Entry) CacheFlush() bool {
	return getU16(e.data, e.TypePos+2)&protocol.ClassCacheFlush != 0
}

// TTL returns a resource record's time-to-live field. Meaningless for
// question entries.
func (e *Entry) TTL() uint32 {
	return getU32(e.data, e.TypePos+4)
}

// RData returns the raw resource-data bytes of a resource record entry.
func (e *Entry) RData() []byte {
	return e.data[e.RDataPos : e.RDataPos+e.RDataLen]
}

// Message returns the full message this entry was decoded from, for
// callers (like PTR-rdata name decoding) that need an absolute offset
// into the message rather than a self-contained slice, since a name
// inside rdata may carry a compression pointer referencing any earlier
// offset in the whole message.
func (e *Entry) Message() []byte {
	return e.data
}

// DecodeOwnerName decodes this entry's owner name into canonical,
// pointer-free form.
func (e *Entry) DecodeOwnerName() ([]byte, error) {
	name, _, err := DecodeName(e.data, e.NamePos)
	return name, err
}

// Reader walks the questions and resource records of a DNS message in
// order, supporting both sequential iteration (the common case, O(1)
// per entry) and random access to an arbitrary entry index (O(n) in the
// distance moved, since finding entry K requires having parsed every
// entry before it: a resource record's length is only known once its
// name and fixed fields are decoded).
type Reader struct {
	data          []byte
	QuestionCount int
	RRCount       int // answer + authority + additional
	index         int
	pos           int
	valid         bool
}

// NewReader validates msg's header and prepares a Reader over it.
func NewReader(msg []byte) (*Reader, error) {
	r := &Reader{data: msg}
	if len(msg) < protocol.HeaderSize {
		return nil, &errors.WireFormatError{Operation: "read header", Offset: 0, Err: fmt.Errorf("message shorter than header")}
	}
	r.QuestionCount = int(getU16(msg, 4))
	answerCount := int(getU16(msg, 6))
	authorityCount := int(getU16(msg, 8))
	additionalCount := int(getU16(msg, 10))
	r.RRCount = answerCount + authorityCount + additionalCount
	r.pos = protocol.HeaderSize
	r.index = 0
	r.valid = true
	return r, nil
}

// ID returns the message's transaction ID header field.
func (r *Reader) ID() uint16 { return getU16(r.data, 0) }

// Flags returns the message's flags header field.
func (r *Reader) Flags() uint16 { return getU16(r.data, 2) }

// EntryCount returns the total number of questions and resource records
// in the message.
func (r *Reader) EntryCount() int { return r.QuestionCount + r.RRCount }

// Entry returns the entry at the given index, which must be less than
// EntryCount(). Requesting the next index is O(1), and a later index
// costs the distance moved; requesting an earlier index rewinds the
// reader to the start of the message and re-walks forward, which is
// O(index).
func (r *Reader) Entry(index int) (*Entry, error) {
	if !r.valid {
		return nil, &errors.WireFormatError{Operation: "read entry", Offset: 0, Err: fmt.Errorf("reader is invalid")}
	}
	if index < 0 || index >= r.EntryCount() {
		errors.Fatal("entry index %d out of range [0,%d)", index, r.EntryCount())
	}
	if r.index > index {
		r.pos = protocol.HeaderSize
		r.index = 0
	}
	var entry *Entry
	for r.index <= index {
		e, err := r.nextEntry()
		if err != nil {
			return nil, err
		}
		entry = e
	}
	return entry, nil
}

// nextEntry decodes the entry at the reader's current position and
// advances past it.
func (r *Reader) nextEntry() (*Entry, error) {
	isQuestion := r.index < r.QuestionCount
	namePos := r.pos
	nameEnd, err := SkipName(r.data, namePos)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		data:       r.data,
		Index:      r.index,
		IsQuestion: isQuestion,
		NamePos:    namePos,
		TypePos:    nameEnd,
	}

	if isQuestion {
		if nameEnd+4 > len(r.data) {
			return nil, &errors.WireFormatError{Operation: "read question", Offset: nameEnd, Err: fmt.Errorf("truncated question")}
		}
		r.pos = nameEnd + 4
	} else {
		if nameEnd+10 > len(r.data) {
			return nil, &errors.WireFormatError{Operation: "read record", Offset: nameEnd, Err: fmt.Errorf("truncated record header")}
		}
		rdataLen := int(getU16(r.data, nameEnd+8))
		rdataPos := nameEnd + 10
		if rdataPos+rdataLen > len(r.data) {
			return nil, &errors.WireFormatError{Operation: "read record", Offset: rdataPos, Err: fmt.Errorf("rdata runs past end of message")}
		}
		entry.RDataPos = rdataPos
		entry.RDataLen = rdataLen
		r.pos = rdataPos + rdataLen
	}

	r.index++
	return entry, nil
}
