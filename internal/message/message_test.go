package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupParts(t *testing.T) {
	now := time.Now()
	records := []Record{
		{ID: "42_2", Multipart: true, ReferenceID: 42, From: "a", To: "b", PartIndex: 2, TotalParts: 3},
		{ID: "single", From: "a", To: "b"},
		{ID: "42_1", Multipart: true, ReferenceID: 42, From: "a", To: "b", PartIndex: 1, TotalParts: 3},
		{ID: "42_1x", Multipart: true, ReferenceID: 42, From: "x", To: "b", PartIndex: 1, TotalParts: 1, ReceivedAt: now},
		{ID: "42_3", Multipart: true, ReferenceID: 42, From: "a", To: "b", PartIndex: 3, TotalParts: 3},
	}

	got := GroupParts(records)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, 42, first.ReferenceID)
	assert.Equal(t, 3, first.ReceivedParts)
	assert.True(t, first.Complete)
	require.Len(t, first.Parts, 3)
	assert.Equal(t, []string{"42_1", "42_2", "42_3"}, []string{first.Parts[0].ID, first.Parts[1].ID, first.Parts[2].ID})

	assert.Equal(t, "x", got[1].From)
	assert.True(t, got[1].Complete)
}

func TestGroupPartsIncomplete(t *testing.T) {
	got := GroupParts([]Record{
		{ID: "7_1", Multipart: true, ReferenceID: 7, PartIndex: 1, TotalParts: 3},
		{ID: "7_3", Multipart: true, ReferenceID: 7, PartIndex: 3, TotalParts: 3},
	})
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].ReceivedParts)
	assert.False(t, got[0].Complete)
}

func TestFilterApply(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{
		{ID: "1", From: "a", Direction: "IN", ReceivedAt: base},
		{ID: "2", From: "a", Direction: "OUT", ReceivedAt: base.Add(time.Second)},
		{ID: "3", From: "b", Direction: "IN", ReceivedAt: base.Add(2 * time.Second)},
		{ID: "4", From: "a", Direction: "IN", ReceivedAt: base.Add(3 * time.Second)},
	}

	got := Filter{From: "a", Direction: "in"}.Apply(records)
	require.Len(t, got, 2)
	assert.Equal(t, "4", got[0].ID)
	assert.Equal(t, "1", got[1].ID)

	got = Filter{Limit: 2, Offset: 1}.Apply(records)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].ID)

	assert.Empty(t, Filter{Offset: 10}.Apply(records))
}
