package simulator

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/thrillee/smppsim/internal/charset"
	"github.com/thrillee/smppsim/internal/concat"
	"github.com/thrillee/smppsim/internal/config"
	"github.com/thrillee/smppsim/internal/message"
	"github.com/thrillee/smppsim/internal/smpp"
	"github.com/thrillee/smppsim/pkg/codes"
	"github.com/thrillee/smppsim/pkg/smpphelper"
)

// SendResult describes an outbound text after every PDU was acknowledged.
type SendResult struct {
	MessageIDs []string         `json:"message_ids"`
	Parts      int              `json:"parts"`
	Encoding   charset.Encoding `json:"encoding"`
	Reference  uint16           `json:"reference,omitempty"`
}

// outbound is one PDU worth of an outbound text.
type outbound struct {
	pdu   *smpp.MessagePDU
	text  string
	raw   []byte
	index int
}

// SendText splits text and sends it with the configured concatenation mode:
// submit_sm from an ESME, deliver_sm from an SMSC.
func (c *Connection) SendText(ctx context.Context, from, to, text string) (SendResult, error) {
	if c.cfg.BindOption == config.BindReceiver {
		return SendResult{}, ErrReceiveOnly
	}
	segments, ucs2, err := c.deps.Segmenter.GetSegments(text)
	if err != nil {
		return SendResult{}, fmt.Errorf("segment text: %w", err)
	}
	enc := c.outboundEncoding(ucs2)
	ref := uint16(c.refSeq.Add(1))
	if c.cfg.ConcatMode == codes.ConcatHeader || c.cfg.ConcatMode == codes.ConcatHeaderPayload {
		ref &= 0xFF
	}

	pdus, err := c.buildOutbound(from, to, text, segments, enc, ref)
	if err != nil {
		return SendResult{}, err
	}

	res := SendResult{Parts: len(pdus), Encoding: enc}
	if len(pdus) > 1 {
		res.Reference = ref
	}
	for _, o := range pdus {
		resp, err := c.mgr.Send(ctx, o.pdu.Frame())
		if err != nil {
			return res, fmt.Errorf("send part %d of %d: %w", o.index, len(pdus), err)
		}
		if resp.CommandStatus != smpp.StatusOk {
			return res, fmt.Errorf("part %d of %d rejected with status 0x%08X", o.index, len(pdus), resp.CommandStatus)
		}
		id := smpp.ResponseMessageID(resp)
		if id == "" {
			id = uuid.NewString()
		}
		res.MessageIDs = append(res.MessageIDs, id)
		c.recordOutbound(ctx, id, o, len(pdus), ref, enc)
	}
	slog.InfoContext(ctx, "Text sent", slog.Int("parts", len(pdus)), slog.String("encoding", string(enc)),
		slog.String("concat_mode", c.cfg.ConcatMode))
	return res, nil
}

func (c *Connection) outboundEncoding(ucs2 bool) charset.Encoding {
	if ucs2 {
		return charset.UTF16BE
	}
	if e, ok := c.cfg.DeclaredEncoding(); ok && !charset.IsMultiByte(e) {
		return e
	}
	return charset.GSM7
}

func (c *Connection) buildOutbound(from, to, text string, segments []string, enc charset.Encoding, ref uint16) ([]outbound, error) {
	if c.cfg.ConcatMode == codes.ConcatPayload {
		raw, err := c.deps.Detector.Encode(text, enc)
		if err != nil {
			return nil, fmt.Errorf("encode text as %s: %w", enc, err)
		}
		m := c.newMessage(from, to, enc)
		m.SetTLV(smpp.TagMessagePayload, raw)
		return []outbound{{pdu: m, text: text, raw: raw, index: 1}}, nil
	}

	total := len(segments)
	out := make([]outbound, 0, total)
	for i, seg := range segments {
		raw, err := c.deps.Detector.Encode(seg, enc)
		if err != nil {
			return nil, fmt.Errorf("encode segment %d as %s: %w", i+1, enc, err)
		}
		m := c.newMessage(from, to, enc)
		idx := i + 1
		switch {
		case total == 1 || c.cfg.ConcatMode == codes.ConcatNone:
			m.ShortMessage = raw
		case c.cfg.ConcatMode == codes.ConcatHeader:
			m.EsmClass |= smpp.EsmClassUDHI
			m.ShortMessage = append(smpphelper.EncodeConcatenatedUDH(uint8(ref), uint8(total), uint8(idx)), raw...)
		case c.cfg.ConcatMode == codes.ConcatSegmentTLV:
			var refBytes [2]byte
			binary.BigEndian.PutUint16(refBytes[:], ref)
			m.ShortMessage = raw
			m.SetTLV(smpp.TagSarMsgRefNum, refBytes[:])
			m.SetTLV(smpp.TagSarTotalSegments, []byte{uint8(total)})
			m.SetTLV(smpp.TagSarSegmentSeqnum, []byte{uint8(idx)})
		case c.cfg.ConcatMode == codes.ConcatHeaderPayload:
			m.EsmClass |= smpp.EsmClassUDHI
			m.SetTLV(smpp.TagMessagePayload, append(smpphelper.EncodeConcatenatedUDH(uint8(ref), uint8(total), uint8(idx)), raw...))
		default:
			return nil, fmt.Errorf("unknown concat mode %q", c.cfg.ConcatMode)
		}
		out = append(out, outbound{pdu: m, text: seg, raw: raw, index: idx})
	}
	return out, nil
}

func (c *Connection) newMessage(from, to string, enc charset.Encoding) *smpp.MessagePDU {
	cmd := smpp.CommandSubmitSM
	if c.cfg.Role == config.RoleSMSC {
		cmd = smpp.CommandDeliverSM
	}
	m := &smpp.MessagePDU{
		CommandID:   cmd,
		Source:      address(c.cfg.Source, from),
		Destination: address(c.cfg.Destination, to),
		DataCoding:  charset.DataCoding(enc),
	}
	if cmd == smpp.CommandSubmitSM && c.cfg.DeliveryReceipt {
		m.RegisteredDelivery = 0x01
	}
	return m
}

func address(def config.AddressDefaults, addr string) smpp.Address {
	if addr == "" {
		addr = def.Address
	}
	return smpp.Address{TON: def.TON, NPI: def.NPI, Addr: addr}
}

func (c *Connection) recordOutbound(ctx context.Context, id string, o outbound, total int, ref uint16, enc charset.Encoding) {
	rec := message.Record{
		ID:           id,
		ConnectionID: c.cfg.ID,
		Direction:    codes.DirectionOut,
		From:         o.pdu.Source.Addr,
		To:           o.pdu.Destination.Addr,
		Text:         o.text,
		Raw:          o.raw,
		DataCoding:   o.pdu.DataCoding,
		Encoding:     string(enc),
		Confidence:   1,
		ReceivedAt:   time.Now(),
	}
	if total > 1 {
		rec.Multipart = true
		rec.Scheme = string(outboundScheme(c.cfg.ConcatMode))
		rec.ReferenceID = int(ref)
		rec.PartIndex = o.index
		rec.TotalParts = total
	}
	if !c.deps.Store.PutOrUpdate(ctx, id, rec) {
		slog.WarnContext(ctx, "Store rejected outbound message", slog.String("id", id))
	}
}

func outboundScheme(mode string) concat.Scheme {
	switch mode {
	case codes.ConcatHeader:
		return concat.SchemeHeader
	case codes.ConcatSegmentTLV:
		return concat.SchemeSAR
	case codes.ConcatHeaderPayload:
		return concat.SchemePayload
	}
	return concat.SchemeNone
}
