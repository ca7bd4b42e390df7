// Package message defines the records the simulator publishes for every
// inbound and outbound message.
package message

import (
	"sort"
	"strings"
	"time"
)

// Record is one published message, part or assembly.
type Record struct {
	ID           string    `json:"id"`
	ConnectionID int       `json:"connection_id"`
	Direction    string    `json:"direction"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Text         string    `json:"text"`
	Raw          []byte    `json:"raw,omitempty"`
	DataCoding   byte      `json:"data_coding"`
	Encoding     string    `json:"encoding"`
	Confidence   float64   `json:"confidence"`
	Multipart    bool      `json:"multipart"`
	Scheme       string    `json:"scheme,omitempty"`
	ReferenceID  int       `json:"reference_id,omitempty"`
	PartIndex    int       `json:"part_index,omitempty"`
	TotalParts   int       `json:"total_parts,omitempty"`
	Incomplete   bool      `json:"incomplete,omitempty"`
	MissingParts []int     `json:"missing_parts,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Filter selects records for listing. Zero fields match everything.
type Filter struct {
	From      string
	To        string
	Direction string
	Limit     int
	Offset    int
}

// Match reports whether r passes the filter's field constraints.
func (f Filter) Match(r Record) bool {
	if f.From != "" && f.From != r.From {
		return false
	}
	if f.To != "" && f.To != r.To {
		return false
	}
	if f.Direction != "" && !strings.EqualFold(f.Direction, r.Direction) {
		return false
	}
	return true
}

// Apply filters, sorts newest first and paginates records.
func (f Filter) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	if f.Offset >= len(out) {
		return []Record{}
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}
