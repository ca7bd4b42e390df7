// Package reassembly accumulates the segments of concatenated messages and
// publishes each message once, either complete or as a best-effort
// incomplete assembly after it goes stale.
package reassembly

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/thrillee/smppsim/internal/charset"
	"github.com/thrillee/smppsim/internal/concat"
	"github.com/thrillee/smppsim/internal/logging"
	"github.com/thrillee/smppsim/internal/message"
	"github.com/thrillee/smppsim/internal/store"
	"github.com/thrillee/smppsim/pkg/codes"
)

const DefaultStaleTimeout = 5 * time.Minute

// assemblyNamespace scopes the name-based ids of assembled messages.
var assemblyNamespace = uuid.MustParse("6f0c1a52-8d4e-4b7a-9a35-3f4a7f2c9e11")

// Result is the outcome of adding a segment.
type Result int

const (
	Pending Result = iota
	Assembled
	DuplicatePart
	DuplicateAssembly
	Single
)

func (r Result) String() string {
	switch r {
	case Pending:
		return "pending"
	case Assembled:
		return "assembled"
	case DuplicatePart:
		return "duplicate_part"
	case DuplicateAssembly:
		return "duplicate_assembly"
	case Single:
		return "single"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Segment is one inbound PDU's contribution.
type Segment struct {
	ConnectionID int
	MessageID    string
	Direction    string
	Descriptor   concat.Descriptor
	From         string
	To           string
	Declared     charset.Encoding
	DataCoding   byte
	ReceivedAt   time.Time
}

// Outcome carries the record published by an operation, if any.
type Outcome struct {
	Result Result
	Record message.Record
}

// Decoder is the encoding detector the engine decodes through.
type Decoder interface {
	Decode(raw []byte, declared charset.Encoding) charset.Result
}

type part struct {
	index      int
	raw        []byte
	text       string
	encoding   charset.Encoding
	confidence float64
	receivedAt time.Time
}

// assemblyKey identifies one in-flight assembly. Reference ids are only
// unique per sender, so two address pairs may use the same one at once.
type assemblyKey struct {
	ref      uint16
	scheme   concat.Scheme
	from, to string
}

func (k assemblyKey) String() string {
	return fmt.Sprintf("%d|%s|%s|%s", k.ref, k.scheme, k.from, k.to)
}

func keyOf(seg Segment) assemblyKey {
	return assemblyKey{ref: seg.Descriptor.ReferenceID, scheme: seg.Descriptor.Scheme, from: seg.From, to: seg.To}
}

// refEntry is the lock table entry for one assembly.
type refEntry struct {
	mu           sync.Mutex
	key          assemblyKey
	ref          uint16
	lastActivity time.Time
	total        int
	scheme       concat.Scheme
	from, to     string
	connID       int
	dataCoding   byte
	parts        map[int]part
	removed      bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithStaleTimeout sets how long an assembly may sit idle before ReapStale
// publishes it as incomplete.
func WithStaleTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.staleAfter = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns its lock table; independent engines never share state.
type Engine struct {
	store      store.Store
	decoder    Decoder
	locks      cmap.ConcurrentMap[assemblyKey, *refEntry]
	staleAfter time.Duration
	now        func() time.Time
}

// NewEngine creates a reassembly engine publishing into st.
func NewEngine(st store.Store, dec Decoder, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		decoder:    dec,
		locks:      cmap.NewStringer[assemblyKey, *refEntry](),
		staleAfter: DefaultStaleTimeout,
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// InFlight is the number of open assemblies.
func (e *Engine) InFlight() int {
	return e.locks.Count()
}

// Add routes a segment: single messages are published directly, parts go
// through the lock table.
func (e *Engine) Add(ctx context.Context, seg Segment) (Outcome, error) {
	if !seg.Descriptor.Multipart() {
		return Outcome{Result: Single, Record: e.PublishSingle(ctx, seg)}, nil
	}
	return e.AddPart(ctx, seg)
}

// PublishSingle decodes a non-concatenated message once and stores it.
func (e *Engine) PublishSingle(ctx context.Context, seg Segment) message.Record {
	res := e.decoder.Decode(seg.Descriptor.Content, seg.Declared)
	rec := e.baseRecord(seg)
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Direction == "" {
		rec.Direction = codes.DirectionIn
	}
	rec.Text = res.Text
	rec.Raw = seg.Descriptor.Content
	rec.Encoding = string(res.Encoding)
	rec.Confidence = res.Confidence
	if !e.store.PutOrUpdate(ctx, rec.ID, rec) {
		slog.WarnContext(ctx, "Store rejected single message", slog.String("id", rec.ID))
	}
	return rec
}

// AddPart stores one segment and publishes the assembled message when every
// index 1..total has been seen. Within one in-flight assembly the first part
// received for an index wins; later copies are reported as DuplicatePart.
func (e *Engine) AddPart(ctx context.Context, seg Segment) (Outcome, error) {
	d := seg.Descriptor
	if d.SegmentIndex < 1 || d.SegmentIndex > d.TotalParts {
		return Outcome{}, fmt.Errorf("%w: %d of %d", concat.ErrInvalidSegment, d.SegmentIndex, d.TotalParts)
	}
	ctx = logging.ContextWithRefID(ctx, d.ReferenceID)

	entry := e.acquire(keyOf(seg), seg)
	entry.lastActivity = e.now()

	if d.SegmentIndex > entry.total {
		total := entry.total
		entry.mu.Unlock()
		return Outcome{}, fmt.Errorf("%w: %d of %d (first part declared total %d)", concat.ErrInvalidSegment, d.SegmentIndex, d.TotalParts, total)
	}
	if d.TotalParts != entry.total {
		slog.WarnContext(ctx, "Segment total differs from first part, keeping first",
			slog.Int("total", d.TotalParts), slog.Int("first_total", entry.total))
	}
	if _, dup := entry.parts[d.SegmentIndex]; dup {
		entry.mu.Unlock()
		slog.InfoContext(ctx, "Duplicate segment ignored", slog.Int("index", d.SegmentIndex))
		return Outcome{Result: DuplicatePart}, nil
	}

	p := e.decodePart(seg)
	entry.parts[d.SegmentIndex] = p
	partRec := e.partRecord(entry, seg, p)

	complete := len(entry.parts) == entry.total
	var assembled message.Record
	if complete {
		assembled = e.assemble(entry)
		e.release(entry)
	}
	entry.mu.Unlock()

	if !e.store.PutOrUpdate(ctx, partRec.ID, partRec) {
		slog.WarnContext(ctx, "Store rejected message part", slog.String("id", partRec.ID))
	}
	if !complete {
		slog.DebugContext(ctx, "Stored message part", slog.Int("index", d.SegmentIndex), slog.Int("total", d.TotalParts))
		return Outcome{Result: Pending, Record: partRec}, nil
	}

	if _, exists := e.store.GetByID(ctx, assembled.ID); exists {
		slog.InfoContext(ctx, "Assembled message already published, skipping", slog.String("id", assembled.ID))
		return Outcome{Result: DuplicateAssembly, Record: assembled}, nil
	}
	if !e.store.PutOrUpdate(ctx, assembled.ID, assembled) {
		slog.WarnContext(ctx, "Store rejected assembled message", slog.String("id", assembled.ID))
	}
	slog.InfoContext(ctx, "Assembled multipart message",
		slog.String("id", assembled.ID), slog.Int("parts", assembled.TotalParts), slog.String("encoding", assembled.Encoding))
	return Outcome{Result: Assembled, Record: assembled}, nil
}

// ReapStale publishes every assembly idle for longer than the stale timeout
// as incomplete and drops its lock entry. The stored parts are kept. Calling
// it again on already reaped references does nothing.
func (e *Engine) ReapStale(ctx context.Context) int {
	cutoff := e.now().Add(-e.staleAfter)
	var reaped []message.Record
	for item := range e.locks.IterBuffered() {
		entry := item.Val
		entry.mu.Lock()
		if entry.removed || entry.lastActivity.After(cutoff) {
			entry.mu.Unlock()
			continue
		}
		reaped = append(reaped, e.incomplete(entry))
		e.release(entry)
		entry.mu.Unlock()
	}

	for _, rec := range reaped {
		rctx := logging.ContextWithRefID(ctx, uint16(rec.ReferenceID))
		if !e.store.PutOrUpdate(rctx, rec.ID, rec) {
			slog.WarnContext(rctx, "Store rejected incomplete message", slog.String("id", rec.ID))
			continue
		}
		slog.WarnContext(rctx, "Published incomplete multipart message",
			slog.String("id", rec.ID), slog.Any("missing", rec.MissingParts), slog.Int("total", rec.TotalParts))
	}
	return len(reaped)
}

// acquire returns the locked entry for key, creating it if needed. An entry
// removed between lookup and lock is retried.
func (e *Engine) acquire(key assemblyKey, seg Segment) *refEntry {
	for {
		entry := e.locks.Upsert(key, nil, func(exist bool, inMap, _ *refEntry) *refEntry {
			if exist {
				return inMap
			}
			return &refEntry{
				key:        key,
				ref:        key.ref,
				total:      seg.Descriptor.TotalParts,
				scheme:     seg.Descriptor.Scheme,
				from:       seg.From,
				to:         seg.To,
				connID:     seg.ConnectionID,
				dataCoding: seg.DataCoding,
				parts:      make(map[int]part, seg.Descriptor.TotalParts),
			}
		})
		entry.mu.Lock()
		if !entry.removed {
			return entry
		}
		entry.mu.Unlock()
	}
}

// release must be called with entry.mu held.
func (e *Engine) release(entry *refEntry) {
	entry.removed = true
	e.locks.RemoveCb(entry.key, func(_ assemblyKey, v *refEntry, exists bool) bool {
		return exists && v == entry
	})
}

func (e *Engine) decodePart(seg Segment) part {
	d := seg.Descriptor
	p := part{index: d.SegmentIndex, raw: d.Content, receivedAt: seg.ReceivedAt}
	if d.Scheme == concat.SchemeTextPattern {
		p.text, p.encoding, p.confidence = d.Text, charset.UTF8, 1.0
		return p
	}
	res := e.decoder.Decode(d.Content, seg.Declared)
	p.text, p.encoding, p.confidence = res.Text, res.Encoding, res.Confidence
	return p
}

// assemble concatenates raw bytes in index order and decodes them once.
func (e *Engine) assemble(entry *refEntry) message.Record {
	var raw []byte
	for i := 1; i <= entry.total; i++ {
		raw = append(raw, entry.parts[i].raw...)
	}
	res := e.decoder.Decode(raw, entry.parts[1].encoding)

	return message.Record{
		ID:           AssembledID(entry.ref, entry.from, entry.to, raw),
		ConnectionID: entry.connID,
		Direction:    codes.DirectionInAssembled,
		From:         entry.from,
		To:           entry.to,
		Text:         res.Text,
		Raw:          raw,
		DataCoding:   entry.dataCoding,
		Encoding:     string(res.Encoding),
		Confidence:   res.Confidence,
		Multipart:    true,
		Scheme:       string(entry.scheme),
		ReferenceID:  int(entry.ref),
		TotalParts:   entry.total,
		ReceivedAt:   e.now(),
	}
}

func (e *Engine) incomplete(entry *refEntry) message.Record {
	var (
		raw     []byte
		text    strings.Builder
		missing []int
	)
	encoding := ""
	for i := 1; i <= entry.total; i++ {
		p, ok := entry.parts[i]
		if !ok {
			missing = append(missing, i)
			fmt.Fprintf(&text, "[missing part %d]", i)
			continue
		}
		if encoding == "" {
			encoding = string(p.encoding)
		}
		raw = append(raw, p.raw...)
		text.WriteString(p.text)
	}
	now := e.now()
	return message.Record{
		ID:           fmt.Sprintf("incomplete_%d_%s_%d", entry.ref, senderTag(entry.from, entry.to), now.UnixNano()),
		ConnectionID: entry.connID,
		Direction:    codes.DirectionInIncomplete,
		From:         entry.from,
		To:           entry.to,
		Text:         text.String(),
		Raw:          raw,
		DataCoding:   entry.dataCoding,
		Encoding:     encoding,
		Multipart:    true,
		Scheme:       string(entry.scheme),
		ReferenceID:  int(entry.ref),
		TotalParts:   entry.total,
		Incomplete:   true,
		MissingParts: missing,
		ReceivedAt:   now,
	}
}

func (e *Engine) baseRecord(seg Segment) message.Record {
	ts := seg.ReceivedAt
	if ts.IsZero() {
		ts = e.now()
	}
	return message.Record{
		ID:           seg.MessageID,
		ConnectionID: seg.ConnectionID,
		Direction:    seg.Direction,
		From:         seg.From,
		To:           seg.To,
		DataCoding:   seg.DataCoding,
		ReceivedAt:   ts,
	}
}

func (e *Engine) partRecord(entry *refEntry, seg Segment, p part) message.Record {
	rec := e.baseRecord(seg)
	rec.ID = PartID(entry.ref, entry.from, entry.to, p.index)
	rec.Direction = codes.DirectionInPart
	rec.Text = p.text
	rec.Raw = p.raw
	rec.Encoding = string(p.encoding)
	rec.Confidence = p.confidence
	rec.Multipart = true
	rec.Scheme = string(seg.Descriptor.Scheme)
	rec.ReferenceID = int(entry.ref)
	rec.PartIndex = p.index
	rec.TotalParts = entry.total
	return rec
}

// PartID is the store key of one part: <ref>_<index>_<sender tag>. The tag
// keeps parts of different address pairs sharing a reference apart.
func PartID(ref uint16, from, to string, index int) string {
	return fmt.Sprintf("%d_%d_%s", ref, index, senderTag(from, to))
}

// AssembledID is stable for the same reference, addresses and content, so a
// repeated completion maps to the same id.
func AssembledID(ref uint16, from, to string, raw []byte) string {
	name := append(senderName(from, to), 0)
	name = append(name, raw...)
	return fmt.Sprintf("%d_%s", ref, uuid.NewSHA1(assemblyNamespace, name))
}

func senderName(from, to string) []byte {
	name := make([]byte, 0, len(from)+len(to)+1)
	name = append(name, from...)
	name = append(name, 0)
	return append(name, to...)
}

// senderTag is a short digest of the address pair.
func senderTag(from, to string) string {
	return uuid.NewSHA1(assemblyNamespace, senderName(from, to)).String()[:8]
}
