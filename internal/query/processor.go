// Package query implements the mDNS query processor and response
// emitter: decoding an incoming message's questions against a record
// database, applying known-answer suppression, expanding the answer set
// with additional records a querier is likely to need next, and
// streaming the result out as one or more wire-format response
// messages bounded by a caller-supplied MTU and maximum size.
package query

import (
	"github.com/gmondada/mdnsd/internal/message"
	"github.com/gmondada/mdnsd/internal/protocol"
	"github.com/gmondada/mdnsd/internal/records"
)

// maxResponseRecords bounds how many records a single incoming message
// can cause to be queued for response at once. It is not a limit on how
// many records a responder may ever serve — once the queue is drained
// the processor decodes further pending questions into a fresh batch —
// only on how much state Run needs to hold at a time.
const maxResponseRecords = 32

// Processor decodes the questions in one incoming mDNS message against
// a record database and produces the matching response messages.
// A Processor is used for exactly one incoming message: construct one
// with NewProcessor, then call Run repeatedly until it returns 0.
type Processor struct {
	database *records.Database

	reader        *message.Reader
	decodingErr   error
	questionCount int
	questionIndex int

	recordList      [maxResponseRecords]responseRecord
	answerCount     int
	additionalCount int

	emitter emitter
}

// NewProcessor prepares a Processor for msg against database. A
// malformed msg is never treated as an error the caller must handle:
// per RFC 6762, a responder that cannot parse a query simply has
// nothing to answer, so NewProcessor records the problem internally and
// Run will return 0 on the very first call.
func NewProcessor(msg []byte, database *records.Database) *Processor {
	p := &Processor{database: database}

	reader, err := message.NewReader(msg)
	if err != nil {
		p.decodingErr = err
		return p
	}
	p.reader = reader

	if reader.Flags()&protocol.FlagQR != 0 {
		// This is a response, not a query; mDNS responders answer
		// questions only.
		p.questionCount = 0
	} else {
		p.questionCount = reader.QuestionCount
	}
	return p
}

// Run produces the next pending response message into outMsg and
// returns its length, or 0 once nothing remains to send. idealSize
// should be the path MTU (minus IP/UDP headers); maxSize bounds how far
// a single oversized mandatory record may be allowed to grow a message,
// and must be at least idealSize. The caller must send each non-zero
// result as an independent UDP datagram and keep calling Run until it
// returns 0.
func (p *Processor) Run(outMsg []byte, idealSize, maxSize int) int {
	for {
		pendingRecords := p.emitter.recordIndex < p.answerCount
		pendingQuestions := p.decodingErr == nil && p.questionIndex < p.questionCount

		switch {
		case pendingRecords:
			if size := p.emitter.run(outMsg, idealSize, maxSize); size != 0 {
				return size
			}
		case pendingQuestions:
			p.decodeQuestions()
			p.removeKnownAnswers()
			p.generateAdditionalRecords()
			p.emitter = newEmitter(p.recordList[:], p.answerCount, p.additionalCount, false)
		default:
			return 0
		}
	}
}

// decodeQuestions walks the message's question section from
// questionIndex onward, matching each question's owner name and type
// against the database and appending matches to recordList. If a
// domain has no record of the exact requested type but does carry an
// NSEC record, that NSEC record is returned instead, asserting the
// absence per RFC 6762 §6.1.
//
// If a question's answers do not fit in the fixed-size record list and
// no answer has been committed yet in this call, that question's answers
// are discarded outright and decoding moves on to the next question (so
// the responder makes forward progress instead of re-decoding the same
// oversized question forever). Otherwise decoding stops and the question
// is left for the next call to Run, once the list has been drained by the
// emitter.
func (p *Processor) decodeQuestions() {
	p.answerCount = 0
	p.additionalCount = 0

	for p.questionIndex < p.questionCount {
		if p.answerCount >= maxResponseRecords {
			break
		}

		entry, err := p.reader.Entry(p.questionIndex)
		if err != nil {
			p.decodingErr = err
			break
		}

		class := entry.Class()
		if class != protocol.ClassIN && class != protocol.ClassAny {
			p.questionIndex++
			continue
		}

		name, err := entry.DecodeOwnerName()
		if err != nil {
			p.decodingErr = err
			break
		}
		qtype := entry.Type()

		overflow := false
		firstRecord := p.answerCount

		if domain := p.database.Lookup(name); domain != nil {
			found := false
			var nsecRecord *records.Record
			for _, record := range domain.Records {
				if record.Type == qtype {
					found = true
					if p.answerCount >= maxResponseRecords {
						overflow = true
						break
					}
					p.recordList[p.answerCount] = responseRecord{protocol.CategoryAnswer, record}
					p.answerCount++
				} else if record.Type == protocol.TypeNSEC {
					nsecRecord = record
				}
			}
			if !found && nsecRecord != nil && !overflow {
				if findRecord(p.recordList[:p.answerCount], nsecRecord) == nil {
					if p.answerCount >= maxResponseRecords {
						overflow = true
					} else {
						p.recordList[p.answerCount] = responseRecord{protocol.CategoryAnswer, nsecRecord}
						p.answerCount++
					}
				}
			}
		}

		if overflow {
			if firstRecord == 0 {
				p.answerCount = 0
			} else {
				p.answerCount = firstRecord
				break
			}
		}

		p.questionIndex++
	}
}

// removeKnownAnswers implements RFC 6762 §7.1 known-answer suppression
// for PTR records: if the querying message already lists a PTR record
// mdnsd was about to send, with a remaining TTL of at least half the
// record's own TTL, that answer is dropped from this response. Every
// resource record of the query is checked, whichever section it is in;
// suppression is not limited to the answer section. Suppression is not
// extended to other record types, mirroring the reference
// implementation, which only ever compares PTR targets.
func (p *Processor) removeKnownAnswers() {
	if p.decodingErr != nil {
		return
	}

	questionCount := p.reader.QuestionCount
	total := p.reader.EntryCount()

	for i := questionCount; i < total; i++ {
		entry, err := p.reader.Entry(i)
		if err != nil {
			return
		}

		class := entry.Class()
		if class != protocol.ClassIN && class != protocol.ClassAny {
			continue
		}

		rtype := entry.Type()
		if rtype != protocol.TypePTR {
			continue
		}

		// The rdata must be exactly one name, with nothing trailing it.
		span, err := message.NameSpan(entry.Message(), entry.RDataPos)
		if err != nil || span != entry.RDataLen {
			continue
		}

		ttl := entry.TTL()

		name, err := entry.DecodeOwnerName()
		if err != nil {
			return
		}

		var ptrTarget []byte
		ptrTargetDecoded := false

		for r := 0; r < p.answerCount; r++ {
			record := &p.recordList[r]
			if record.category != protocol.CategoryAnswer {
				continue
			}
			if record.record.Type != rtype {
				continue
			}
			if !message.CompareNames(name, record.record.Owner.Name) {
				continue
			}
			if !ptrTargetDecoded {
				target, _, derr := message.DecodeName(entry.Message(), entry.RDataPos)
				if derr != nil {
					return
				}
				ptrTarget = target
				ptrTargetDecoded = true
			}
			if !message.CompareNames(ptrTarget, record.record.Name) {
				continue
			}
			if ttl < record.record.TTL/2 {
				continue
			}
			record.category = protocol.CategoryNone
			break
		}
	}

	compact := 0
	for r := 0; r < p.answerCount; r++ {
		if p.recordList[r].category != protocol.CategoryNone {
			if compact != r {
				p.recordList[compact] = p.recordList[r]
			}
			compact++
		}
	}
	p.answerCount = compact
}

// generateAdditionalRecords implements RFC 6762 §6's additional-record
// rule: for every PTR or SRV record already queued — answers, and the
// additional records this pass has itself appended — every record owned
// by the domain the PTR/SRV target names is appended as an
// additional-section record (skipping anything already present in the
// list), so a querier following up a PTR with an SRV lookup, or an SRV
// lookup with an address lookup, usually never has to.
func (p *Processor) generateAdditionalRecords() {
	if p.decodingErr != nil {
		return
	}

	recordIndex := p.answerCount

	for a := 0; a < recordIndex; a++ {
		if recordIndex >= maxResponseRecords {
			break
		}

		rr := p.recordList[a]
		if rr.category != protocol.CategoryAnswer && rr.category != protocol.CategoryAdditional {
			continue
		}

		var target []byte
		switch rr.record.Type {
		case protocol.TypePTR:
			target = rr.record.Name
		case protocol.TypeSRV:
			target = rr.record.SRV.Target
		default:
			continue
		}
		if target == nil {
			continue
		}

		domain := p.database.Lookup(target)
		if domain == nil {
			continue
		}
		for _, record := range domain.Records {
			if recordIndex >= maxResponseRecords {
				break
			}
			if findRecord(p.recordList[:recordIndex], record) != nil {
				continue
			}
			p.recordList[recordIndex] = responseRecord{protocol.CategoryAdditional, record}
			recordIndex++
		}
	}

	p.additionalCount = recordIndex - p.answerCount
}

// findRecord reports whether record already appears in list, comparing
// by pointer identity: every *records.Record in a database is a single
// long-lived value, so two response entries referring to the same
// record are always the exact same pointer.
func findRecord(list []responseRecord, record *records.Record) *responseRecord {
	for i := range list {
		if list[i].record == record {
			return &list[i]
		}
	}
	return nil
}
