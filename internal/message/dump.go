package message

import (
	"fmt"
	"strings"
)

// Dump renders msg as a one-line human-readable summary for debug
// logging, replacing the original's printf-based u2_dns_msg_dump /
// u2_dns_data_dump with something a structured logger can attach as a
// single field. It never fails: a malformed message is summarized as far
// as it could be parsed, with "(truncated)" appended.
func Dump(msg []byte) string {
	reader, err := NewReader(msg)
	if err != nil {
		return fmt.Sprintf("invalid message (%v), %d bytes", err, len(msg))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "id=%d flags=0x%04x qd=%d rr=%d", reader.ID(), reader.Flags(), reader.QuestionCount, reader.RRCount)

	for i := 0; i < reader.EntryCount(); i++ {
		entry, err := reader.Entry(i)
		if err != nil {
			b.WriteString(" (truncated)")
			break
		}
		name, err := entry.DecodeOwnerName()
		if err != nil {
			b.WriteString(" (truncated)")
			break
		}
		if entry.IsQuestion {
			fmt.Fprintf(&b, " Q[%s %s]", dottedName(name), entry.Type())
		} else {
			fmt.Fprintf(&b, " RR[%s %s ttl=%d]", dottedName(name), entry.Type(), entry.TTL())
		}
	}
	return b.String()
}

// dottedName renders a canonical wire-form name in familiar dotted form,
// for log lines only; it is never parsed back.
func dottedName(name []byte) string {
	var labels []string
	for pos := 0; pos < len(name); {
		n := int(name[pos])
		if n == 0 {
			break
		}
		pos++
		if pos+n > len(name) {
			break
		}
		labels = append(labels, string(name[pos:pos+n]))
		pos += n
	}
	if len(labels) == 0 {
		return "."
	}
	return strings.Join(labels, ".")
}
