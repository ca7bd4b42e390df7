package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/thrillee/smppsim/internal/config"
	"github.com/thrillee/smppsim/internal/logging"
	"github.com/thrillee/smppsim/internal/message"
	"github.com/thrillee/smppsim/internal/smpp"
	"github.com/thrillee/smppsim/pkg/codes"
	"github.com/thrillee/smppsim/pkg/errormapper"
)

const receiptDateLayout = "0601021504"

var receiptIDPattern = regexp.MustCompile(`\bid:(\S+)`)

// wantsReceipt reports whether an accepted submit_sm gets a delivery receipt.
func (c *Connection) wantsReceipt(m *smpp.MessagePDU) bool {
	if c.cfg.Role != config.RoleSMSC || m.CommandID != smpp.CommandSubmitSM {
		return false
	}
	return m.RegisteredDelivery&0x03 != 0 || c.cfg.DeliveryReceipt
}

// ReceiptText formats the conventional receipt body.
func ReceiptText(id string, submitted, done time.Time, stat, text string) string {
	if r := []rune(text); len(r) > 20 {
		text = string(r[:20])
	}
	return fmt.Sprintf("id:%s sub:001 dlvrd:001 submit date:%s done date:%s stat:%s err:%s text:%s",
		id, submitted.Format(receiptDateLayout), done.Format(receiptDateLayout),
		stat, errormapper.MapErrorCode(stat), text)
}

// ReceiptFrame builds the deliver_sm receipt for a submitted message,
// addressed back to its sender.
func ReceiptFrame(id string, orig *smpp.MessagePDU, submitted time.Time, text string) smpp.Frame {
	body := ReceiptText(id, submitted, time.Now(), errormapper.StatusCodeDelivered, text)
	m := &smpp.MessagePDU{
		CommandID:    smpp.CommandDeliverSM,
		Source:       orig.Destination,
		Destination:  orig.Source,
		EsmClass:     smpp.EsmClassReceipt,
		DataCoding:   smpp.DataCodingDefault,
		ShortMessage: []byte(body),
	}
	m.SetTLV(smpp.TagReceiptedMessageID, append([]byte(id), 0))
	m.SetTLV(smpp.TagMessageState, []byte{smpp.MessageStateDelivered})
	return m.Frame()
}

func (c *Connection) scheduleReceipt(id string, orig *smpp.MessagePDU, text string) {
	submitted := time.Now()
	c.receipts.Add(1)
	go func() {
		defer c.receipts.Done()
		ctx := logging.ContextWithMessageID(c.logCtx, id)
		timer := time.NewTimer(c.cfg.ReceiptDelay)
		defer timer.Stop()
		select {
		case <-c.lifetime.Done():
			return
		case <-timer.C:
		}
		resp, err := c.mgr.Send(c.lifetime, ReceiptFrame(id, orig, submitted, text))
		if err != nil {
			slog.WarnContext(ctx, "Delivery receipt not delivered", slog.Any("error", err))
			return
		}
		if resp.CommandStatus != smpp.StatusOk {
			slog.WarnContext(ctx, "Delivery receipt rejected", slog.Any("status", resp.CommandStatus))
			return
		}
		slog.DebugContext(ctx, "Delivery receipt sent")
	}()
}

// processReceipt records an inbound receipt under dr_<receipted id>.
func (c *Connection) processReceipt(ctx context.Context, m *smpp.MessagePDU) {
	res := c.deps.Detector.Decode(m.Content(), c.declared(m.DataCoding))
	id := receiptedID(m, res.Text)
	if id == "" {
		id = uuid.NewString()
	}
	rec := message.Record{
		ID:           "dr_" + id,
		ConnectionID: c.cfg.ID,
		Direction:    codes.DirectionReceipt,
		From:         m.Source.Addr,
		To:           m.Destination.Addr,
		Text:         res.Text,
		Raw:          m.Content(),
		DataCoding:   m.DataCoding,
		Encoding:     string(res.Encoding),
		Confidence:   res.Confidence,
		ReceivedAt:   time.Now(),
	}
	if !c.deps.Store.PutOrUpdate(ctx, rec.ID, rec) {
		slog.WarnContext(ctx, "Store rejected receipt", slog.String("id", rec.ID))
	}
	slog.InfoContext(ctx, "Delivery receipt received", slog.String("receipted_id", id))
}

func receiptedID(m *smpp.MessagePDU, text string) string {
	if v, ok := m.TLV(smpp.TagReceiptedMessageID); ok {
		if n := len(v); n > 0 && v[n-1] == 0 {
			v = v[:n-1]
		}
		if len(v) > 0 {
			return string(v)
		}
	}
	if match := receiptIDPattern.FindStringSubmatch(text); match != nil {
		return match[1]
	}
	return ""
}
