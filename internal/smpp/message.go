package smpp

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Address is a TON/NPI qualified SMPP address.
type Address struct {
	TON  byte
	NPI  byte
	Addr string
}

// TLV is an optional parameter kept as raw bytes.
type TLV struct {
	Tag   uint16
	Value []byte
}

// MessagePDU is a submit_sm, deliver_sm or data_sm body. short_message and
// every TLV value are kept undecoded.
type MessagePDU struct {
	CommandID      uint32
	SequenceNumber uint32

	ServiceType          string
	Source               Address
	Destination          Address
	EsmClass             byte
	ProtocolID           byte
	PriorityFlag         byte
	ScheduleDeliveryTime string
	ValidityPeriod       string
	RegisteredDelivery   byte
	ReplaceIfPresent     byte
	DataCoding           byte
	SmDefaultMsgID       byte
	ShortMessage         []byte
	TLVs                 []TLV
}

// IsMessageCommand reports whether cmdID carries a MessagePDU body.
func IsMessageCommand(cmdID uint32) bool {
	return cmdID == CommandSubmitSM || cmdID == CommandDeliverSM || cmdID == CommandDataSM
}

// ParseMessage decodes the body of a submit_sm, deliver_sm or data_sm frame.
func ParseMessage(f Frame) (*MessagePDU, error) {
	if !IsMessageCommand(f.CommandID) {
		return nil, fmt.Errorf("smpp: %s is not a message pdu", CommandIDToString(f.CommandID))
	}
	m := &MessagePDU{CommandID: f.CommandID, SequenceNumber: f.SequenceNumber}
	r := &bodyReader{b: f.Body}

	m.ServiceType = r.cstring()
	m.Source = r.address()
	m.Destination = r.address()
	m.EsmClass = r.byte()

	if f.CommandID == CommandDataSM {
		m.RegisteredDelivery = r.byte()
		m.DataCoding = r.byte()
	} else {
		m.ProtocolID = r.byte()
		m.PriorityFlag = r.byte()
		m.ScheduleDeliveryTime = r.cstring()
		m.ValidityPeriod = r.cstring()
		m.RegisteredDelivery = r.byte()
		m.ReplaceIfPresent = r.byte()
		m.DataCoding = r.byte()
		m.SmDefaultMsgID = r.byte()
		smLen := int(r.byte())
		m.ShortMessage = r.bytes(smLen)
	}
	if r.err != nil {
		return nil, r.err
	}

	tlvs, err := parseTLVs(r.rest())
	if err != nil {
		return nil, err
	}
	m.TLVs = tlvs
	return m, nil
}

// Frame re-encodes the PDU.
func (m *MessagePDU) Frame() Frame {
	var buf bytes.Buffer
	writeCString(&buf, m.ServiceType)
	writeAddress(&buf, m.Source)
	writeAddress(&buf, m.Destination)
	buf.WriteByte(m.EsmClass)
	if m.CommandID == CommandDataSM {
		buf.WriteByte(m.RegisteredDelivery)
		buf.WriteByte(m.DataCoding)
	} else {
		buf.WriteByte(m.ProtocolID)
		buf.WriteByte(m.PriorityFlag)
		writeCString(&buf, m.ScheduleDeliveryTime)
		writeCString(&buf, m.ValidityPeriod)
		buf.WriteByte(m.RegisteredDelivery)
		buf.WriteByte(m.ReplaceIfPresent)
		buf.WriteByte(m.DataCoding)
		buf.WriteByte(m.SmDefaultMsgID)
		buf.WriteByte(byte(len(m.ShortMessage)))
		buf.Write(m.ShortMessage)
	}
	for _, t := range m.TLVs {
		var hdr [4]byte
		binary.BigEndian.PutUint16(hdr[0:], t.Tag)
		binary.BigEndian.PutUint16(hdr[2:], uint16(len(t.Value)))
		buf.Write(hdr[:])
		buf.Write(t.Value)
	}
	return NewFrame(m.CommandID, StatusOk, m.SequenceNumber, buf.Bytes())
}

// TLV returns the value of the first TLV with the given tag.
func (m *MessagePDU) TLV(tag uint16) ([]byte, bool) {
	for _, t := range m.TLVs {
		if t.Tag == tag {
			return t.Value, true
		}
	}
	return nil, false
}

// TLVUint reads a 1, 2 or 4 byte big endian integer TLV.
func (m *MessagePDU) TLVUint(tag uint16) (uint32, bool) {
	v, ok := m.TLV(tag)
	if !ok {
		return 0, false
	}
	switch len(v) {
	case 1:
		return uint32(v[0]), true
	case 2:
		return uint32(binary.BigEndian.Uint16(v)), true
	case 4:
		return binary.BigEndian.Uint32(v), true
	}
	return 0, false
}

// SetTLV replaces or appends a TLV.
func (m *MessagePDU) SetTLV(tag uint16, value []byte) {
	for i := range m.TLVs {
		if m.TLVs[i].Tag == tag {
			m.TLVs[i].Value = value
			return
		}
	}
	m.TLVs = append(m.TLVs, TLV{Tag: tag, Value: value})
}

// Payload returns the message_payload TLV, if any.
func (m *MessagePDU) Payload() []byte {
	v, _ := m.TLV(TagMessagePayload)
	return v
}

// Content is the message body: short_message, or message_payload when
// short_message is empty.
func (m *MessagePDU) Content() []byte {
	if len(m.ShortMessage) > 0 {
		return m.ShortMessage
	}
	return m.Payload()
}

// HasUDHI reports whether esm_class flags a user data header.
func (m *MessagePDU) HasUDHI() bool {
	return m.EsmClass&EsmClassUDHI != 0
}

// IsReceipt reports whether esm_class marks a delivery receipt.
func (m *MessagePDU) IsReceipt() bool {
	return m.EsmClass&EsmClassReceipt != 0
}

// MessageResponse builds the response for a message PDU carrying messageID.
// deliver_sm_resp carries an empty message_id per the protocol.
func MessageResponse(req Frame, status uint32, messageID string) Frame {
	var buf bytes.Buffer
	if req.CommandID == CommandDeliverSM {
		messageID = ""
	}
	if status == StatusOk || req.CommandID == CommandDataSM {
		writeCString(&buf, messageID)
	}
	return NewFrame(ResponseID(req.CommandID), status, req.SequenceNumber, buf.Bytes())
}

// ResponseMessageID extracts the message_id of a submit_sm_resp/data_sm_resp body.
func ResponseMessageID(f Frame) string {
	s, _, ok := readCString(f.Body)
	if !ok {
		return ""
	}
	return s
}

func parseTLVs(b []byte) ([]TLV, error) {
	var out []TLV
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, fmt.Errorf("%w: tlv header", ErrTruncated)
		}
		tag := binary.BigEndian.Uint16(b[0:2])
		l := int(binary.BigEndian.Uint16(b[2:4]))
		if len(b) < 4+l {
			return nil, fmt.Errorf("%w: tlv 0x%04X value", ErrTruncated, tag)
		}
		val := make([]byte, l)
		copy(val, b[4:4+l])
		out = append(out, TLV{Tag: tag, Value: val})
		b = b[4+l:]
	}
	return out, nil
}

func writeAddress(buf *bytes.Buffer, a Address) {
	buf.WriteByte(a.TON)
	buf.WriteByte(a.NPI)
	writeCString(buf, a.Addr)
}

// bodyReader walks a PDU body, remembering the first error.
type bodyReader struct {
	b   []byte
	off int
	err error
}

func (r *bodyReader) byte() byte {
	if r.err != nil {
		return 0
	}
	if r.off >= len(r.b) {
		r.err = fmt.Errorf("%w: at offset %d", ErrTruncated, r.off)
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *bodyReader) cstring() string {
	if r.err != nil {
		return ""
	}
	s, n, ok := readCString(r.b[r.off:])
	if !ok {
		r.err = fmt.Errorf("%w: unterminated string at offset %d", ErrTruncated, r.off)
		return ""
	}
	r.off += n
	return s
}

func (r *bodyReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.b) {
		r.err = fmt.Errorf("%w: short_message wants %d bytes", ErrTruncated, n)
		return nil
	}
	v := make([]byte, n)
	copy(v, r.b[r.off:r.off+n])
	r.off += n
	return v
}

func (r *bodyReader) address() Address {
	return Address{TON: r.byte(), NPI: r.byte(), Addr: r.cstring()}
}

func (r *bodyReader) rest() []byte {
	if r.off >= len(r.b) {
		return nil
	}
	return r.b[r.off:]
}
