package message

import "sort"

// Conversation groups the parts of one concatenated message.
type Conversation struct {
	ReferenceID   int      `json:"reference_id"`
	From          string   `json:"from"`
	To            string   `json:"to"`
	TotalParts    int      `json:"total_parts"`
	ReceivedParts int      `json:"received_parts"`
	Complete      bool     `json:"complete"`
	Parts         []Record `json:"parts"`
}

type conversationKey struct {
	ref      int
	from, to string
}

// GroupParts groups multipart part records by (reference, from, to), sorts
// each group by part index and reports completeness. Non-part records are
// ignored.
func GroupParts(records []Record) []Conversation {
	groups := make(map[conversationKey]*Conversation)
	var order []conversationKey
	for _, r := range records {
		if !r.Multipart || r.PartIndex == 0 {
			continue
		}
		k := conversationKey{ref: r.ReferenceID, from: r.From, to: r.To}
		c, ok := groups[k]
		if !ok {
			c = &Conversation{ReferenceID: r.ReferenceID, From: r.From, To: r.To}
			groups[k] = c
			order = append(order, k)
		}
		if r.TotalParts > c.TotalParts {
			c.TotalParts = r.TotalParts
		}
		c.Parts = append(c.Parts, r)
	}

	out := make([]Conversation, 0, len(order))
	for _, k := range order {
		c := groups[k]
		sort.SliceStable(c.Parts, func(i, j int) bool { return c.Parts[i].PartIndex < c.Parts[j].PartIndex })
		seen := make(map[int]bool, len(c.Parts))
		for _, p := range c.Parts {
			seen[p.PartIndex] = true
		}
		c.ReceivedParts = len(seen)
		c.Complete = c.TotalParts > 0 && c.ReceivedParts >= c.TotalParts
		out = append(out, *c)
	}
	return out
}
