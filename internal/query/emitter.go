package query

import (
	"github.com/gmondada/mdnsd/internal/errors"
	"github.com/gmondada/mdnsd/internal/message"
	"github.com/gmondada/mdnsd/internal/protocol"
	"github.com/gmondada/mdnsd/internal/records"
)

// responseRecord pairs a database record with the message section it
// should be emitted into.
type responseRecord struct {
	category protocol.Category
	record   *records.Record
}

// emitter drains a fixed list of responseRecords into one or more
// wire-format messages, never emitting a message larger than maxSize and
// preferring, when possible, to keep each message within idealSize (the
// path MTU). Mandatory records (the answers the emitter was told to
// produce) are never dropped for being individually oversized unless
// even a lone record cannot fit in maxSize; optional records (the
// additional-section piggyback) are dropped the moment one fails to
// fit, with no retry, since they were never required for the response
// to be correct.
type emitter struct {
	recordList     []responseRecord
	mandatoryCount int
	optionalCount  int
	recordIndex    int
	tearDown       bool
}

func newEmitter(recordList []responseRecord, mandatoryCount, optionalCount int, tearDown bool) emitter {
	return emitter{
		recordList:     recordList,
		mandatoryCount: mandatoryCount,
		optionalCount:  optionalCount,
		tearDown:       tearDown,
	}
}

// run writes as much of the remaining record list as fits into outMsg
// and returns the number of bytes written, or 0 once every mandatory
// and optional record has been emitted (or discarded). The caller must
// keep calling run until it returns 0, sending each non-zero result as
// one independent UDP datagram.
func (e *emitter) run(outMsg []byte, idealSize, maxSize int) int {
	if idealSize > maxSize {
		errors.Fatal("response message ideal size exceeds its max size")
	}
	if e.recordIndex >= e.mandatoryCount {
		return 0
	}

	builder := message.NewBuilder(outMsg, idealSize, 0, protocol.FlagQR|protocol.FlagAA)
	category := protocol.CategoryNone
	wroteAny := false

	for e.recordIndex < e.mandatoryCount {
		rr := e.recordList[e.recordIndex]
		if category != rr.category {
			category = rr.category
			builder.SetCategory(category)
		}
		if !addAnswer(builder, rr.record, e.tearDown) {
			if !wroteAny {
				// Nothing has gone into this message yet, whether
				// because this is the first record run looked at or
				// because every one before it was discarded as
				// oversized: retry this record against the largest
				// allowed message before giving up on it too.
				maxBuilder := message.NewBuilder(outMsg, maxSize, 0, protocol.FlagQR|protocol.FlagAA)
				if addAnswer(maxBuilder, rr.record, e.tearDown) {
					e.recordIndex++
					return maxBuilder.Size()
				}
				// Still too big even at max size: discard it and move on.
			} else {
				// Some records already went into this message; stop here
				// and let the rest go out in a follow-up message.
				return builder.Size()
			}
		} else {
			wroteAny = true
		}
		e.recordIndex++
	}

	// Mandatory records are exhausted; ride as many optional
	// (additional-section) records as will fit, with no retry at
	// max size — an optional record that doesn't fit is simply
	// dropped from this response.
	for e.recordIndex < e.mandatoryCount+e.optionalCount {
		rr := e.recordList[e.recordIndex]
		if category != rr.category {
			category = rr.category
			builder.SetCategory(category)
		}
		if !addAnswer(builder, rr.record, e.tearDown) {
			break
		}
		e.recordIndex++
	}

	return builder.Size()
}

// Announcer drives the same fragmentation logic as Processor's embedded
// emitter, but over a caller-supplied list of records rather than one
// computed from an incoming query — for unsolicited announcements sent on
// interface arrival or service registration, and goodbye packets
// (tearDown=true) sent on shutdown or service withdrawal
// (spec.md §4.8).
type Announcer struct {
	e emitter
}

// NewAnnouncer prepares an Announcer over recs, every one of which is
// emitted as an answer-section record (unsolicited announcements carry no
// question and no additional section).
func NewAnnouncer(recs []*records.Record, tearDown bool) *Announcer {
	list := make([]responseRecord, len(recs))
	for i, r := range recs {
		list[i] = responseRecord{protocol.CategoryAnswer, r}
	}
	return &Announcer{e: newEmitter(list, len(list), 0, tearDown)}
}

// Run produces the next announcement datagram into outMsg, or returns 0
// once every record has been emitted. The caller must keep calling Run
// until it returns 0.
func (a *Announcer) Run(outMsg []byte, idealSize, maxSize int) int {
	return a.e.run(outMsg, idealSize, maxSize)
}

// addAnswer appends one record's answer to builder, applying the
// tear-down TTL override (used for goodbye packets) and, for NSEC
// records, computing the type bitmap from the record's sibling records
// in the same domain.
func addAnswer(builder *message.Builder, record *records.Record, tearDown bool) bool {
	ttl := record.TTL
	if tearDown {
		ttl = 0
	}

	switch record.Type {
	case protocol.TypeA, protocol.TypeAAAA:
		return builder.AddAddress(record.Owner.Name, record.Type, record.CacheFlush, ttl, record.Address)
	case protocol.TypeTXT:
		return builder.AddTXT(record.Owner.Name, record.CacheFlush, ttl, record.TXT)
	case protocol.TypeSRV:
		return builder.AddSRV(record.Owner.Name, record.CacheFlush, ttl, record.SRV.Priority, record.SRV.Weight, record.SRV.Port, record.SRV.Target)
	case protocol.TypePTR, protocol.TypeNS, protocol.TypeCNAME:
		return builder.AddName(record.Owner.Name, record.Type, record.CacheFlush, ttl, record.Name)
	case protocol.TypeNSEC:
		var typeMask uint64
		for _, sibling := range record.Owner.Records {
			if sibling == record {
				continue
			}
			if sibling.Type >= 64 {
				errors.Fatal("record type %d cannot be represented in a single-domain NSEC bitmap", sibling.Type)
			}
			typeMask |= uint64(1) << uint(sibling.Type)
		}
		return builder.AddSingleDomainNSEC(record.Owner.Name, record.CacheFlush, ttl, typeMask)
	default:
		return false
	}
}
