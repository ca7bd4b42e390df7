package reassembly

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thrillee/smppsim/internal/charset"
	"github.com/thrillee/smppsim/internal/concat"
	"github.com/thrillee/smppsim/internal/message"
	"github.com/thrillee/smppsim/internal/smpp"
	"github.com/thrillee/smppsim/internal/store"
	"github.com/thrillee/smppsim/pkg/codes"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newEngine(t *testing.T) (*Engine, *store.MemoryStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	st := store.NewMemoryStore(0)
	return NewEngine(st, charset.NewDetector(), WithClock(clock.Now)), st, clock
}

func headerSegment(ref uint16, total, idx int, body string) Segment {
	return Segment{
		ConnectionID: 1,
		Descriptor: concat.Descriptor{
			Scheme:       concat.SchemeHeader,
			ReferenceID:  ref,
			TotalParts:   total,
			SegmentIndex: idx,
			Content:      []byte(body),
		},
		From:     "1000",
		To:       "2000",
		Declared: charset.ISO88591,
	}
}

func TestHeaderSchemeOutOfOrder(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newEngine(t)
	bodies := map[int]string{1: "AAAAA", 2: "BBBBB", 3: "CCCCC"}

	var assembled []Outcome
	for _, idx := range []int{2, 1, 3} {
		out, err := e.AddPart(ctx, headerSegment(42, 3, idx, bodies[idx]))
		require.NoError(t, err)
		if out.Result == Assembled {
			assembled = append(assembled, out)
		}
	}

	require.Len(t, assembled, 1)
	rec := assembled[0].Record
	assert.Equal(t, []byte("AAAAABBBBBCCCCC"), rec.Raw)
	assert.Len(t, rec.Raw, 15)
	assert.Equal(t, "AAAAABBBBBCCCCC", rec.Text)
	assert.Equal(t, codes.DirectionInAssembled, rec.Direction)
	assert.Equal(t, 42, rec.ReferenceID)
	assert.Equal(t, 0, e.InFlight())

	stored, ok := st.GetByID(ctx, rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec.Raw, stored.Raw)
}

func TestTextPatternAssembly(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)
	c := concat.NewClassifier(charset.NewDetector())

	var last Outcome
	var refs []uint16
	for _, body := range []string{"1/2 Hello ", "2/2 World"} {
		m := &smpp.MessagePDU{
			CommandID:    smpp.CommandDeliverSM,
			Source:       smpp.Address{Addr: "555"},
			Destination:  smpp.Address{Addr: "777"},
			ShortMessage: []byte(body),
		}
		d, err := c.Classify(m, charset.ISO88591)
		require.NoError(t, err)
		refs = append(refs, d.ReferenceID)

		last, err = e.Add(ctx, Segment{Descriptor: d, From: "555", To: "777", Declared: charset.ISO88591})
		require.NoError(t, err)
	}
	assert.Equal(t, refs[0], refs[1])
	require.Equal(t, Assembled, last.Result)
	assert.Equal(t, "Hello World", last.Record.Text)
}

func TestPermutationsProduceIdenticalAssembly(t *testing.T) {
	ctx := context.Background()
	perms := [][]int{{1, 2, 3, 4}, {4, 3, 2, 1}, {2, 4, 1, 3}, {3, 1, 4, 2}}
	var results [][]byte
	var ids []string
	for _, perm := range perms {
		e, _, _ := newEngine(t)
		count := 0
		for _, idx := range perm {
			out, err := e.AddPart(ctx, headerSegment(9, 4, idx, fmt.Sprintf("part-%d|", idx)))
			require.NoError(t, err)
			if out.Result == Assembled {
				count++
				results = append(results, out.Record.Raw)
				ids = append(ids, out.Record.ID)
			}
		}
		assert.Equal(t, 1, count, "perm %v", perm)
	}
	for i := 1; i < len(results); i++ {
		assert.Equal(t, results[0], results[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestInvalidIndexRejected(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	_, err := e.AddPart(ctx, headerSegment(5, 2, 3, "bad"))
	assert.ErrorIs(t, err, concat.ErrInvalidSegment)
	_, err = e.AddPart(ctx, headerSegment(5, 2, 0, "bad"))
	assert.ErrorIs(t, err, concat.ErrInvalidSegment)

	_, err = e.AddPart(ctx, headerSegment(5, 2, 1, "one"))
	require.NoError(t, err)
	// a later part claiming a larger total cannot exceed the first part's total
	_, err = e.AddPart(ctx, headerSegment(5, 3, 3, "bad"))
	assert.ErrorIs(t, err, concat.ErrInvalidSegment)

	out, err := e.AddPart(ctx, headerSegment(5, 2, 2, "two"))
	require.NoError(t, err)
	require.Equal(t, Assembled, out.Result)
	assert.Equal(t, "onetwo", out.Record.Text)
}

func TestDuplicatePartFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newEngine(t)

	_, err := e.AddPart(ctx, headerSegment(7, 2, 1, "first"))
	require.NoError(t, err)
	out, err := e.AddPart(ctx, headerSegment(7, 2, 1, "second"))
	require.NoError(t, err)
	assert.Equal(t, DuplicatePart, out.Result)

	rec, ok := st.GetByID(ctx, PartID(7, "1000", "2000", 1))
	require.True(t, ok)
	assert.Equal(t, "first", rec.Text)

	out, err = e.AddPart(ctx, headerSegment(7, 2, 2, "-end"))
	require.NoError(t, err)
	assert.Equal(t, "first-end", out.Record.Text)
}

func TestSendersSharingReference(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newEngine(t)
	segment := func(from string, idx int) Segment {
		seg := headerSegment(7, 2, idx, fmt.Sprintf("%s-%d ", from, idx))
		seg.From = from
		return seg
	}

	texts := map[string]string{}
	for _, seg := range []Segment{segment("alice", 1), segment("bob", 1), segment("alice", 2), segment("bob", 2)} {
		out, err := e.AddPart(ctx, seg)
		require.NoError(t, err)
		require.NotEqual(t, DuplicatePart, out.Result, "%s part %d", seg.From, seg.Descriptor.SegmentIndex)
		if out.Result == Assembled {
			assert.Equal(t, 7, out.Record.ReferenceID)
			texts[out.Record.From] = out.Record.Text
		}
	}
	assert.Equal(t, map[string]string{"alice": "alice-1 alice-2 ", "bob": "bob-1 bob-2 "}, texts)
	assert.Equal(t, 0, e.InFlight())

	for _, from := range []string{"alice", "bob"} {
		p, ok := st.GetByID(ctx, PartID(7, from, "2000", 1))
		require.True(t, ok, from)
		assert.Equal(t, from+"-1 ", p.Text)
	}
}

func TestDuplicateAssemblySkipped(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	for round, want := range []Result{Assembled, DuplicateAssembly} {
		_, err := e.AddPart(ctx, headerSegment(8, 2, 1, "ab"))
		require.NoError(t, err)
		out, err := e.AddPart(ctx, headerSegment(8, 2, 2, "cd"))
		require.NoError(t, err)
		assert.Equal(t, want, out.Result, "round %d", round)
	}
}

func TestReapStaleIncomplete(t *testing.T) {
	ctx := context.Background()
	e, st, clock := newEngine(t)

	_, err := e.AddPart(ctx, headerSegment(77, 3, 1, "one"))
	require.NoError(t, err)
	_, err = e.AddPart(ctx, headerSegment(77, 3, 3, "three"))
	require.NoError(t, err)

	assert.Equal(t, 0, e.ReapStale(ctx))

	clock.Advance(DefaultStaleTimeout + time.Second)
	assert.Equal(t, 1, e.ReapStale(ctx))
	assert.Equal(t, 0, e.ReapStale(ctx))
	assert.Equal(t, 0, e.InFlight())

	list, err := st.List(ctx, message.Filter{Direction: codes.DirectionInIncomplete})
	require.NoError(t, err)
	require.Len(t, list, 1)
	inc := list[0]
	assert.True(t, inc.Incomplete)
	assert.Contains(t, inc.ID, "incomplete_77_")
	assert.Equal(t, "one[missing part 2]three", inc.Text)
	assert.Equal(t, []int{2}, inc.MissingParts)

	for _, idx := range []int{1, 3} {
		p, ok := st.GetByID(ctx, PartID(77, "1000", "2000", idx))
		assert.True(t, ok, "part %d", idx)
		assert.Equal(t, codes.DirectionInPart, p.Direction)
	}
}

func TestSinglePublished(t *testing.T) {
	ctx := context.Background()
	e, st, _ := newEngine(t)
	out, err := e.Add(ctx, Segment{
		MessageID:  "m1",
		Descriptor: concat.Descriptor{Scheme: concat.SchemeNone, TotalParts: 1, SegmentIndex: 1, Content: []byte("hi")},
		Declared:   charset.ISO88591,
	})
	require.NoError(t, err)
	assert.Equal(t, Single, out.Result)
	rec, ok := st.GetByID(ctx, "m1")
	require.True(t, ok)
	assert.Equal(t, "hi", rec.Text)
	assert.Equal(t, codes.DirectionIn, rec.Direction)
}

func TestConcurrentReferencesDoNotInterfere(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t)

	var mu sync.Mutex
	assembled := map[uint16]string{}
	var wg sync.WaitGroup
	for ref := uint16(1); ref <= 50; ref++ {
		for idx := 1; idx <= 3; idx++ {
			wg.Add(1)
			go func(ref uint16, idx int) {
				defer wg.Done()
				out, err := e.AddPart(ctx, headerSegment(ref, 3, idx, fmt.Sprintf("%d.%d;", ref, idx)))
				if err != nil || out.Result != Assembled {
					return
				}
				mu.Lock()
				assembled[ref] = out.Record.Text
				mu.Unlock()
			}(ref, idx)
		}
	}
	wg.Wait()

	require.Len(t, assembled, 50)
	assert.Equal(t, "7.1;7.2;7.3;", assembled[7])
	assert.Equal(t, 0, e.InFlight())
}
