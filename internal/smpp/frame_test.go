package smpp

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameBytesRecomputesLength(t *testing.T) {
	f := NewFrame(CommandEnquireLink, StatusOk, 7, nil)
	f.Length = 999
	f.Body = []byte{1, 2, 3}

	b := f.Bytes()
	require.Len(t, b, 19)
	assert.Equal(t, uint32(19), binary.BigEndian.Uint32(b[0:4]))
	assert.Equal(t, CommandEnquireLink, binary.BigEndian.Uint32(b[4:8]))
	assert.Equal(t, uint32(7), binary.BigEndian.Uint32(b[12:16]))
}

func TestReadFrame(t *testing.T) {
	in := NewFrame(CommandSubmitSMResp, StatusInvMsgLen, 42, []byte("abc\x00"))
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, in))

	out, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, CommandSubmitSMResp, out.CommandID)
	assert.Equal(t, StatusInvMsgLen, out.CommandStatus)
	assert.Equal(t, uint32(42), out.SequenceNumber)
	assert.Equal(t, []byte("abc\x00"), out.Body)
	assert.True(t, out.IsResponse())
}

func TestReadFrameRejectsBadLength(t *testing.T) {
	for _, length := range []uint32{0, 15, MaxPDULength + 1} {
		hdr := make([]byte, HeaderLength)
		binary.BigEndian.PutUint32(hdr, length)
		_, err := ReadFrame(bytes.NewReader(hdr))
		assert.ErrorIs(t, err, ErrInvalidLength, "length %d", length)
	}
}

func TestReadFrameShortBody(t *testing.T) {
	b := NewFrame(CommandSubmitSM, 0, 1, make([]byte, 10)).Bytes()
	_, err := ReadFrame(bytes.NewReader(b[:20]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestResponseFor(t *testing.T) {
	req := NewFrame(CommandUnbind, 0, 9, nil)
	resp := ResponseFor(req, StatusInvBndSts)
	assert.Equal(t, CommandUnbindResp, resp.CommandID)
	assert.Equal(t, uint32(9), resp.SequenceNumber)
	assert.Equal(t, StatusInvBndSts, resp.CommandStatus)
}

func TestCommandIDToString(t *testing.T) {
	assert.Equal(t, "SubmitSM", CommandIDToString(CommandSubmitSM))
	assert.Equal(t, "DataSMResp", CommandIDToString(CommandDataSMResp))
	assert.Equal(t, "Unknown(0x1234)", CommandIDToString(0x1234))
}
