package smpp

import (
	"bytes"
	"fmt"

	"github.com/linxGnu/gosmpp/data"
	"github.com/linxGnu/gosmpp/pdu"
)

// EncodePDU marshals a gosmpp control PDU into a frame.
func EncodePDU(p pdu.PDU) (Frame, error) {
	buf := pdu.NewBuffer(make([]byte, 0, 64))
	p.Marshal(buf)
	f, err := ReadFrame(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return Frame{}, fmt.Errorf("encode %T: %w", p, err)
	}
	return f, nil
}

// DecodePDU parses a frame with gosmpp.
func DecodePDU(f Frame) (pdu.PDU, error) {
	p, err := pdu.Parse(bytes.NewReader(f.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", CommandIDToString(f.CommandID), err)
	}
	return p, nil
}

// BindingType maps a bind option ("trx", "tx", "rx") to the gosmpp binding type.
func BindingType(option string) (pdu.BindingType, bool) {
	switch option {
	case "trx", "transceiver":
		return pdu.Transceiver, true
	case "tx", "transmitter":
		return pdu.Transmitter, true
	case "rx", "receiver":
		return pdu.Receiver, true
	}
	return 0, false
}

// NewBindFrame builds a bind request frame.
func NewBindFrame(bt pdu.BindingType, systemID, password, systemType string, seq uint32) (Frame, error) {
	br := pdu.NewBindRequest(bt)
	br.SystemID = systemID
	br.Password = password
	br.SystemType = systemType
	br.SetSequenceNumber(int32(seq))
	return EncodePDU(br)
}

// BindResponseFrame answers a parsed bind request.
func BindResponseFrame(br *pdu.BindRequest, status uint32, systemID string) (Frame, error) {
	brp := br.GetResponse().(*pdu.BindResp)
	brp.SystemID = systemID
	brp.Header.CommandStatus = data.CommandStatusType(status)
	return EncodePDU(brp)
}

// NewEnquireLinkFrame builds an enquire_link request.
func NewEnquireLinkFrame(seq uint32) (Frame, error) {
	p := pdu.NewEnquireLink()
	p.SetSequenceNumber(int32(seq))
	return EncodePDU(p)
}

// NewUnbindFrame builds an unbind request.
func NewUnbindFrame(seq uint32) (Frame, error) {
	p := pdu.NewUnbind()
	p.SetSequenceNumber(int32(seq))
	return EncodePDU(p)
}

// ControlResponse answers enquire_link and unbind requests.
func ControlResponse(req Frame) (Frame, error) {
	p, err := DecodePDU(req)
	if err != nil {
		return Frame{}, err
	}
	if !p.CanResponse() {
		return Frame{}, fmt.Errorf("smpp: %s has no response", CommandIDToString(req.CommandID))
	}
	return EncodePDU(p.GetResponse())
}

// SubmitResponseFrame builds a submit_sm_resp carrying messageID.
func SubmitResponseFrame(seq uint32, status uint32, messageID string) (Frame, error) {
	resp := pdu.NewSubmitSMResp().(*pdu.SubmitSMResp)
	resp.MessageID = messageID
	resp.SetSequenceNumber(int32(seq))
	resp.Header.CommandStatus = data.CommandStatusType(status)
	return EncodePDU(resp)
}

// DeliverResponseFrame builds a deliver_sm_resp.
func DeliverResponseFrame(seq uint32, status uint32) (Frame, error) {
	resp := pdu.NewDeliverSMResp().(*pdu.DeliverSMResp)
	resp.SetSequenceNumber(int32(seq))
	resp.Header.CommandStatus = data.CommandStatusType(status)
	return EncodePDU(resp)
}
