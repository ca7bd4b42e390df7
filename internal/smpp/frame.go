package smpp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrTruncated is returned when a PDU body ends before a mandatory field.
	ErrTruncated = errors.New("smpp: truncated pdu")
	// ErrInvalidLength is returned for a command_length outside [16, MaxPDULength].
	ErrInvalidLength = errors.New("smpp: invalid command length")
)

// Header is the SMPP PDU header (16 bytes).
type Header struct {
	Length         uint32
	CommandID      uint32
	CommandStatus  uint32
	SequenceNumber uint32
}

// Frame is one undecoded PDU as it travelled on the wire.
type Frame struct {
	Header
	Body []byte
}

// NewFrame creates a frame. Length is filled in by Bytes.
func NewFrame(cmdID, status, seq uint32, body []byte) Frame {
	return Frame{
		Header: Header{
			Length:         uint32(HeaderLength + len(body)),
			CommandID:      cmdID,
			CommandStatus:  status,
			SequenceNumber: seq,
		},
		Body: body,
	}
}

// IsResponse reports whether the frame carries a response command id.
func (f Frame) IsResponse() bool {
	return f.CommandID&CommandGenericNack != 0
}

// Bytes serialises the frame, always recomputing command_length.
func (f Frame) Bytes() []byte {
	length := uint32(HeaderLength + len(f.Body))
	buf := make([]byte, length)
	binary.BigEndian.PutUint32(buf[0:], length)
	binary.BigEndian.PutUint32(buf[4:], f.CommandID)
	binary.BigEndian.PutUint32(buf[8:], f.CommandStatus)
	binary.BigEndian.PutUint32(buf[12:], f.SequenceNumber)
	copy(buf[HeaderLength:], f.Body)
	return buf
}

// ResponseFor builds a body-less response frame for req with the given status.
func ResponseFor(req Frame, status uint32) Frame {
	return NewFrame(ResponseID(req.CommandID), status, req.SequenceNumber, nil)
}

// ReadFrame reads the header and body of a single PDU from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdrBytes [HeaderLength]byte
	if _, err := io.ReadFull(r, hdrBytes[:]); err != nil {
		return Frame{}, err
	}

	var f Frame
	f.Length = binary.BigEndian.Uint32(hdrBytes[0:4])
	f.CommandID = binary.BigEndian.Uint32(hdrBytes[4:8])
	f.CommandStatus = binary.BigEndian.Uint32(hdrBytes[8:12])
	f.SequenceNumber = binary.BigEndian.Uint32(hdrBytes[12:16])

	if f.Length < HeaderLength || f.Length > MaxPDULength {
		return f, fmt.Errorf("%w: %d", ErrInvalidLength, f.Length)
	}

	bodyLen := int(f.Length) - HeaderLength
	if bodyLen > 0 {
		f.Body = make([]byte, bodyLen)
		if _, err := io.ReadFull(r, f.Body); err != nil {
			return f, fmt.Errorf("error reading PDU body (expected %d bytes): %w", bodyLen, err)
		}
	}
	return f, nil
}

// WriteFrame writes f to w in one call.
func WriteFrame(w io.Writer, f Frame) error {
	buf := f.Bytes()
	n, err := w.Write(buf)
	if err == nil && n != len(buf) {
		err = io.ErrShortWrite
	}
	return err
}

// readCString reads a NUL-terminated string from b.
// Returns the string, the number of bytes consumed (including NUL) and ok status.
func readCString(b []byte) (string, int, bool) {
	idx := bytes.IndexByte(b, 0x00)
	if idx == -1 {
		return "", 0, false
	}
	return string(b[:idx]), idx + 1, true
}

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0x00)
}
