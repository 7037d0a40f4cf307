// Package message implements the DNS wire-format codec: name encoding
// and compression (this file), the big-endian field primitives, the
// message reader, and the message builder. Every function here operates
// directly on byte slices and offsets; nothing is parsed into a tree.
package message

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/gmondada/mdnsd/internal/errors"
	"github.com/gmondada/mdnsd/internal/protocol"
)

// SkipName validates the name encoded at offset in data — following at
// most one compression pointer hop per level, each of which must point
// strictly backward — and returns the offset of the byte immediately
// following the name (after the terminating zero label, or after the
// two bytes of a compression pointer).
//
// SkipName never allocates. It is what the message reader uses to find
// entry boundaries when it does not need the name's value, only its
// length.
func SkipName(data []byte, offset int) (int, error) {
	return skipName(data, offset, len(data))
}

// skipName walks a name starting at pos, refusing to dereference any
// compression pointer that targets pos or later. limit bounds how far a
// pointer may be dereferenced, so that validating a pointer target can
// never walk back into data the pointer itself is part of, cutting off
// any possibility of a pointer loop.
func skipName(data []byte, pos int, limit int) (int, error) {
	for {
		if pos >= limit || pos >= len(data) {
			return 0, &errors.WireFormatError{Operation: "skip name", Offset: pos, Err: fmt.Errorf("name runs past end of message")}
		}
		b := data[pos]
		switch {
		case b == 0:
			return pos + 1, nil
		case b >= 0xc0:
			if pos+1 >= len(data) {
				return 0, &errors.WireFormatError{Operation: "skip name", Offset: pos, Err: fmt.Errorf("truncated compression pointer")}
			}
			ptr := int(b&0x3f)<<8 | int(data[pos+1])
			if ptr >= pos {
				return 0, &errors.WireFormatError{Operation: "skip name", Offset: pos, Err: fmt.Errorf("compression pointer does not point strictly backward")}
			}
			if _, err := skipName(data, ptr, pos); err != nil {
				return 0, err
			}
			return pos + 2, nil
		case b >= 0x40:
			return 0, &errors.WireFormatError{Operation: "skip name", Offset: pos, Err: fmt.Errorf("reserved label length bits set")}
		default:
			labelLen := int(b)
			pos++
			if pos+labelLen > limit || pos+labelLen > len(data) {
				return 0, &errors.WireFormatError{Operation: "skip name", Offset: pos, Err: fmt.Errorf("label runs past end of message")}
			}
			pos += labelLen
		}
	}
}

// NameSpan returns the number of bytes the encoded name at offset
// occupies in data, without decoding it.
func NameSpan(data []byte, offset int) (int, error) {
	end, err := SkipName(data, offset)
	if err != nil {
		return 0, err
	}
	return end - offset, nil
}

// DecodeName decodes the (possibly compressed) name at offset in data
// into its canonical, pointer-free wire form, and returns that form
// along with the offset immediately following the name's encoding at
// offset (which, for a compressed name, is right after the two-byte
// pointer — not after whatever the pointer targets).
//
// The returned name is suitable for use as a domain database key or for
// byte comparison against another decoded or locally-built name: it
// never contains a compression pointer.
func DecodeName(data []byte, offset int) ([]byte, int, error) {
	var out []byte
	pos := offset
	limit := len(data)
	for {
		if pos >= limit {
			return nil, 0, &errors.WireFormatError{Operation: "decode name", Offset: pos, Err: fmt.Errorf("name runs past end of message")}
		}
		b := data[pos]
		switch {
		case b == 0:
			out = append(out, 0)
			if len(out) > protocol.MaxNameLength {
				return nil, 0, &errors.WireFormatError{Operation: "decode name", Offset: pos, Err: fmt.Errorf("name longer than 255 bytes")}
			}
			return out, pos + 1, nil
		case b >= 0xc0:
			if pos+1 >= len(data) {
				return nil, 0, &errors.WireFormatError{Operation: "decode name", Offset: pos, Err: fmt.Errorf("truncated compression pointer")}
			}
			ptr := int(b&0x3f)<<8 | int(data[pos+1])
			if ptr >= pos {
				return nil, 0, &errors.WireFormatError{Operation: "decode name", Offset: pos, Err: fmt.Errorf("compression pointer does not point strictly backward")}
			}
			end := pos + 2
			rest, _, err := DecodeName(data, ptr)
			if err != nil {
				return nil, 0, err
			}
			out = append(out, rest...)
			if len(out) > protocol.MaxNameLength {
				return nil, 0, &errors.WireFormatError{Operation: "decode name", Offset: pos, Err: fmt.Errorf("name longer than 255 bytes")}
			}
			return out, end, nil
		case b >= 0x40:
			return nil, 0, &errors.WireFormatError{Operation: "decode name", Offset: pos, Err: fmt.Errorf("reserved label length bits set")}
		default:
			labelLen := int(b)
			if pos+1+labelLen > len(data) {
				return nil, 0, &errors.WireFormatError{Operation: "decode name", Offset: pos, Err: fmt.Errorf("label runs past end of message")}
			}
			out = append(out, data[pos:pos+1+labelLen]...)
			if len(out) > protocol.MaxNameLength {
				return nil, 0, &errors.WireFormatError{Operation: "decode name", Offset: pos, Err: fmt.Errorf("name longer than 255 bytes")}
			}
			pos += 1 + labelLen
		}
	}
}

// EncodeName converts a dot-separated domain name such as
// "My Printer._ipp._tcp.local" into its length-prefixed wire form,
// terminated by a zero-length label. A trailing dot is tolerated and
// stripped. EncodeName rejects labels longer than 63 bytes and names
// whose wire encoding would exceed 255 bytes.
func EncodeName(name string) ([]byte, error) {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return []byte{0}, nil
	}
	labels := strings.Split(name, ".")
	out := make([]byte, 0, len(name)+2)
	for _, label := range labels {
		if len(label) == 0 {
			return nil, &errors.ValidationError{Field: "name", Value: name, Reason: "empty label"}
		}
		if len(label) > protocol.MaxLabelLength {
			return nil, &errors.ValidationError{Field: "label", Value: label, Reason: "label longer than 63 bytes"}
		}
		out = append(out, byte(len(label)))
		out = append(out, label...)
	}
	out = append(out, 0)
	if len(out) > protocol.MaxNameLength {
		return nil, &errors.ValidationError{Field: "name", Value: name, Reason: "encoded name longer than 255 bytes"}
	}
	return out, nil
}

// NameLength returns the number of bytes, including the terminating
// zero byte, that a canonical (pointer-free) name occupies at the start
// of buf. buf must already be compression-free: encountering a
// compression pointer here means the caller handed NameLength something
// other than a canonical name, which is a bug in mdnsd itself rather
// than bad network input, so it is fatal.
func NameLength(buf []byte) (int, error) {
	pos := 0
	for {
		if pos >= len(buf) {
			return 0, &errors.WireFormatError{Operation: "name length", Offset: pos, Err: fmt.Errorf("missing terminator")}
		}
		b := buf[pos]
		if b == 0 {
			return pos + 1, nil
		}
		if b >= 0x40 {
			errors.Fatal("name length: pointer in canonical name buffer at offset %d", pos)
		}
		pos += 1 + int(b)
	}
}

// CompareNames reports whether two canonical (pointer-free) wire-form
// names are byte-for-byte identical. Used to compare a parsed question's
// or known-answer's owner name against a database domain's name.
func CompareNames(a, b []byte) bool {
	return bytes.Equal(a, b)
}
