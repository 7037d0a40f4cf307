package message

import (
	"bytes"
	"testing"

	"github.com/gmondada/mdnsd/internal/protocol"
)

func buildTestQuery(t *testing.T) []byte {
	t.Helper()
	buf := make([]byte, protocol.MaxMessageSize)
	b := NewBuilder(buf, len(buf), 0, 0)
	name, err := EncodeName("_ipp._tcp.local")
	if err != nil {
		t.Fatalf("encode name: %v", err)
	}
	if !b.AddQuestion(name, protocol.TypePTR, false) {
		t.Fatal("add question failed")
	}
	return buf[:b.Size()]
}

func TestReaderSequential(t *testing.T) {
	msg := buildTestQuery(t)
	r, err := NewReader(msg)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	if r.QuestionCount != 1 {
		t.Fatalf("question count = %d, want 1", r.QuestionCount)
	}
	if r.EntryCount() != 1 {
		t.Fatalf("entry count = %d, want 1", r.EntryCount())
	}
	entry, err := r.Entry(0)
	if err != nil {
		t.Fatalf("entry 0: %v", err)
	}
	if !entry.IsQuestion {
		t.Fatal("expected question entry")
	}
	if entry.Type() != protocol.TypePTR {
		t.Fatalf("type = %v, want PTR", entry.Type())
	}
	name, err := entry.DecodeOwnerName()
	if err != nil {
		t.Fatalf("decode owner name: %v", err)
	}
	want, _ := EncodeName("_ipp._tcp.local")
	if !bytes.Equal(name, want) {
		t.Fatalf("name = %v, want %v", name, want)
	}
}

func TestReaderRandomAccessRewinds(t *testing.T) {
	buf := make([]byte, protocol.MaxMessageSize)
	b := NewBuilder(buf, len(buf), 0, 0)
	n1, _ := EncodeName("one.local")
	n2, _ := EncodeName("two.local")
	b.AddQuestion(n1, protocol.TypeA, false)
	b.AddQuestion(n2, protocol.TypeA, false)
	msg := buf[:b.Size()]

	r, err := NewReader(msg)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}

	e1, err := r.Entry(1)
	if err != nil {
		t.Fatalf("entry 1: %v", err)
	}
	name1, _ := e1.DecodeOwnerName()
	if !bytes.Equal(name1, n2) {
		t.Fatalf("entry 1 name = %v, want %v", name1, n2)
	}

	// rewinding to entry 0 after having already read entry 1
	e0, err := r.Entry(0)
	if err != nil {
		t.Fatalf("entry 0 after rewind: %v", err)
	}
	name0, _ := e0.DecodeOwnerName()
	if !bytes.Equal(name0, n1) {
		t.Fatalf("entry 0 name = %v, want %v", name0, n1)
	}
}

func TestReaderRejectsTruncatedMessage(t *testing.T) {
	if _, err := NewReader(make([]byte, 4)); err == nil {
		t.Fatal("expected error for message shorter than header")
	}
}
