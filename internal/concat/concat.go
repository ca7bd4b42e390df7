// Package concat decides whether an inbound message PDU is one segment of a
// concatenated message, and which scheme carries the segment metadata.
package concat

import (
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"

	"github.com/thrillee/smppsim/internal/charset"
	"github.com/thrillee/smppsim/internal/smpp"
	"github.com/thrillee/smppsim/pkg/smpphelper"
)

// Scheme identifies where concatenation metadata was found.
type Scheme string

const (
	SchemeNone        Scheme = "NONE"
	SchemeTextPattern Scheme = "TEXT_PATTERN"
	SchemeSAR         Scheme = "SAR_TLV"
	SchemeHeader      Scheme = "HEADER"
	SchemePayload     Scheme = "PAYLOAD"
)

// ErrInvalidSegment is returned for a segment index outside [1, total].
var ErrInvalidSegment = errors.New("concat: segment index out of range")

var textPattern = regexp.MustCompile(`(?s)^(\d+)/(\d+)\s+(.*)$`)

// Decoder turns raw bytes into text.
type Decoder interface {
	Decode(raw []byte, declared charset.Encoding) charset.Result
}

// Descriptor routes one PDU into the reassembly engine.
type Descriptor struct {
	Scheme       Scheme
	ReferenceID  uint16
	TotalParts   int
	SegmentIndex int
	// Content is this segment's raw bytes with concatenation metadata removed.
	Content []byte
	// Text is set for the text-pattern scheme, where Content is its UTF-8 form.
	Text string
}

// Multipart reports whether the descriptor belongs to a concatenated message.
func (d Descriptor) Multipart() bool {
	return d.Scheme != SchemeNone
}

// Classifier applies the schemes in priority order.
type Classifier struct {
	decoder Decoder
	connID  int
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithConnection scopes text-pattern references to one connection.
func WithConnection(id int) ClassifierOption {
	return func(c *Classifier) { c.connID = id }
}

// NewClassifier returns a classifier that uses dec to read visible text.
func NewClassifier(dec Decoder, opts ...ClassifierOption) *Classifier {
	c := &Classifier{decoder: dec}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify tests, in order: text pattern, SAR TLVs, a header in
// short_message, a header in message_payload. The first match wins.
func (c *Classifier) Classify(m *smpp.MessagePDU, declared charset.Encoding) (Descriptor, error) {
	if d, ok := c.textPattern(m, declared); ok {
		return d, validate(d)
	}
	if d, ok := sar(m); ok {
		return d, validate(d)
	}
	if d, ok := header(m.ShortMessage, m.HasUDHI(), SchemeHeader); ok {
		return d, validate(d)
	}
	if d, ok := header(m.Payload(), m.HasUDHI(), SchemePayload); ok {
		return d, validate(d)
	}
	return Descriptor{Scheme: SchemeNone, TotalParts: 1, SegmentIndex: 1, Content: visibleBytes(m)}, nil
}

func validate(d Descriptor) error {
	if d.TotalParts < 1 || d.SegmentIndex < 1 || d.SegmentIndex > d.TotalParts {
		return fmt.Errorf("%w: %d of %d (ref %d, %s)", ErrInvalidSegment, d.SegmentIndex, d.TotalParts, d.ReferenceID, d.Scheme)
	}
	return nil
}

// visibleBytes is the message body without any user data header.
func visibleBytes(m *smpp.MessagePDU) []byte {
	b := m.Content()
	if m.HasUDHI() {
		return smpphelper.StripUDH(b)
	}
	return b
}

func (c *Classifier) textPattern(m *smpp.MessagePDU, declared charset.Encoding) (Descriptor, bool) {
	raw := visibleBytes(m)
	if len(raw) == 0 {
		return Descriptor{}, false
	}
	text := c.decoder.Decode(raw, declared).Text
	match := textPattern.FindStringSubmatch(text)
	if match == nil {
		return Descriptor{}, false
	}
	idx, err1 := strconv.Atoi(match[1])
	total, err2 := strconv.Atoi(match[2])
	if err1 != nil || err2 != nil || total > 255 {
		return Descriptor{}, false
	}
	body := match[3]
	return Descriptor{
		Scheme:       SchemeTextPattern,
		ReferenceID:  TextReference(c.connID, m.Source.Addr, m.Destination.Addr, total),
		TotalParts:   total,
		SegmentIndex: idx,
		Content:      []byte(body),
		Text:         body,
	}, true
}

// TextReference derives a stable reference for text-pattern parts. Every
// part of one message shares the same connection, addresses and total, so
// it hashes the same without shared state.
//
// The pattern carries no message identity of its own. Two text-pattern
// messages in flight at once on the same connection, between the same
// addresses and with the same total, get the same reference and merge into
// one assembly. Parts of one message arriving over different connections
// are never joined.
func TextReference(connID int, from, to string, total int) uint16 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.Itoa(connID)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(from))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(to))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(total)))
	sum := h.Sum32()
	return uint16(sum>>16) ^ uint16(sum)
}

func sar(m *smpp.MessagePDU) (Descriptor, bool) {
	ref, ok1 := m.TLVUint(smpp.TagSarMsgRefNum)
	total, ok2 := m.TLVUint(smpp.TagSarTotalSegments)
	seq, ok3 := m.TLVUint(smpp.TagSarSegmentSeqnum)
	if !ok1 || !ok2 || !ok3 {
		return Descriptor{}, false
	}
	return Descriptor{
		Scheme:       SchemeSAR,
		ReferenceID:  uint16(ref),
		TotalParts:   int(total),
		SegmentIndex: int(seq),
		Content:      m.Content(),
	}, true
}

// header reads a concatenation element at the start of b. Without UDHI only
// the fixed 05 00 03 layout is accepted.
func header(b []byte, udhi bool, scheme Scheme) (Descriptor, bool) {
	var (
		info smpphelper.ConcatInfo
		n    int
		ok   bool
	)
	switch {
	case udhi:
		info, n, ok = smpphelper.ParseConcatenatedUDH(b)
	case smpphelper.HasFixedConcatHeader(b):
		info, n, ok = smpphelper.ParseConcatenatedUDH(b)
	}
	if !ok {
		return Descriptor{}, false
	}
	return Descriptor{
		Scheme:       scheme,
		ReferenceID:  info.Reference,
		TotalParts:   int(info.Total),
		SegmentIndex: int(info.Sequence),
		Content:      b[n:],
	}, true
}
