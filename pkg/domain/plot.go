package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// PlotID is the stable identifier of a plot.
// Backends send either JSON numbers or strings. Integer identifiers are kept in
// their decimal form and written back as JSON numbers, so a backend that sends
// the string "12" receives the number 12 in delete/resize requests. Strings like
// "007" or "+5" are not canonical integers and stay strings.
type PlotID string

// UnmarshalJSON accepts numbers, strings and null.
func (id *PlotID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("plot id: %w", err)
		}
		*id = PlotID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("plot id: %w", err)
	}
	*id = PlotID(n.String())
	return nil
}

// MarshalJSON writes integer identifiers as numbers and everything else as strings.
func (id PlotID) MarshalJSON() ([]byte, error) {
	if id.numeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id PlotID) numeric() bool {
	if id == "" {
		return false
	}
	n, err := strconv.ParseInt(string(id), 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == string(id)
}

// Timestamp is the creation time of a plot.
// It decodes RFC 3339 strings and epoch numbers (seconds or milliseconds).
// Anything else decodes to the zero time instead of failing the whole frame.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	t.Time = time.Time{}
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			t.Time = parsed
		}
		return nil
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return nil
	}
	// Values past ~5138 AD in seconds are treated as milliseconds.
	if n > 1e11 {
		t.Time = time.UnixMilli(int64(n))
	} else {
		t.Time = time.Unix(int64(n), 0)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Plot is a single artifact produced by the backend.
// ID, Data and CreatedAt belong to the backend; Note and IsFavorite belong to the client.
type Plot struct {
	ID         PlotID    `json:"id"`
	Data       string    `json:"data"`
	CreatedAt  Timestamp `json:"timestamp"`
	Note       string    `json:"note"`
	IsFavorite bool      `json:"isFavorite"`
}

// Annotation returns the client-owned fields of the plot.
func (p Plot) Annotation() Annotation {
	return Annotation{Note: p.Note, IsFavorite: p.IsFavorite}
}

// WithAnnotation returns a copy of the plot carrying the given annotation.
func (p Plot) WithAnnotation(a Annotation) Plot {
	p.Note = a.Note
	p.IsFavorite = a.IsFavorite
	return p
}

// Annotation holds the client-owned fields of a plot.
type Annotation struct {
	Note       string `json:"note"`
	IsFavorite bool   `json:"isFavorite"`
}

// IsZero reports whether the annotation equals the defaults.
func (a Annotation) IsZero() bool {
	return a.Note == "" && !a.IsFavorite
}

// RetainedAnnotations maps plot identifiers to the annotations the user set on them.
type RetainedAnnotations map[PlotID]Annotation

// Clone returns an independent copy.
func (r RetainedAnnotations) Clone() RetainedAnnotations {
	out := make(RetainedAnnotations, len(r))
	for id, a := range r {
		out[id] = a
	}
	return out
}

// Merge overlays other onto a copy of r. Entries of other win.
func (r RetainedAnnotations) Merge(other RetainedAnnotations) RetainedAnnotations {
	out := r.Clone()
	for id, a := range other {
		out[id] = a
	}
	return out
}

// PlotList is an ordered sequence of plots in backend arrival order.
type PlotList []Plot

// Clone returns an independent copy of the list.
func (l PlotList) Clone() PlotList {
	if l == nil {
		return PlotList{}
	}
	out := make(PlotList, len(l))
	copy(out, l)
	return out
}

// Index returns the position of the plot with the given id, or -1.
func (l PlotList) Index(id PlotID) int {
	for i := range l {
		if l[i].ID == id {
			return i
		}
	}
	return -1
}

// IDs returns the identifiers in list order.
func (l PlotList) IDs() []PlotID {
	ids := make([]PlotID, len(l))
	for i := range l {
		ids[i] = l[i].ID
	}
	return ids
}

// Retained collects the non-default annotations carried by the list.
func (l PlotList) Retained() RetainedAnnotations {
	out := make(RetainedAnnotations)
	for _, p := range l {
		if a := p.Annotation(); !a.IsZero() && p.ID != "" {
			out[p.ID] = a
		}
	}
	return out
}

// IDGenerator synthesizes identifiers for plots the backend sent without one.
// Identifiers are millisecond timestamps, bumped to stay strictly increasing.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	Now  func() time.Time
}

// Next returns a fresh identifier.
func (g *IDGenerator) Next() PlotID {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	ms := now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return PlotID(strconv.FormatInt(ms, 10))
}
