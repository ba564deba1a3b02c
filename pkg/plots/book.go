package plots

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/plotbridge/pkg/domain"
)

// View is an immutable copy of the book contents.
// Current is -1 when the list is empty.
type View struct {
	Plots   domain.PlotList
	Current int
}

// CurrentPlot returns the selected plot, if any.
func (v View) CurrentPlot() (domain.Plot, bool) {
	if v.Current < 0 || v.Current >= len(v.Plots) {
		return domain.Plot{}, false
	}
	return v.Plots[v.Current], true
}

// Book owns the working plot list, the selection and the retained annotations.
// Every mutation returns a fresh View; callers never share the internal slice.
type Book struct {
	mu       sync.Mutex
	plots    domain.PlotList
	current  int
	retained domain.RetainedAnnotations
	gen      *domain.IDGenerator
	now      func() time.Time
}

// BookOption configures a Book.
type BookOption func(*Book)

// WithClock overrides the clock used for identifiers and timestamps.
func WithClock(now func() time.Time) BookOption {
	return func(b *Book) {
		b.now = now
		b.gen.Now = now
	}
}

// NewBook creates an empty book.
func NewBook(opts ...BookOption) *Book {
	b := &Book{
		current:  -1,
		retained: make(domain.RetainedAnnotations),
		gen:      &domain.IDGenerator{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Seed merges persisted annotations into the retained set.
// Entries already set in this process win over seeded ones.
func (b *Book) Seed(retained domain.RetainedAnnotations) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retained = retained.Merge(b.retained)
}

// ApplySnapshot replaces the list with a reconciliation of snapshot.
// Retained annotations for identifiers the snapshot dropped are forgotten.
func (b *Book) ApplySnapshot(snapshot []domain.Plot) View {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.plots = Reconcile(snapshot, b.retained, b.gen)
	b.retained = b.plots.Retained()
	b.clamp()
	return b.view()
}

// Append adds a plot pushed by the backend and selects it.
// The plot starts with default annotations.
func (b *Book) Append(data string, meta domain.PlotMetadata) View {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := meta.ID
	if id == "" {
		id = b.gen.Next()
	}
	plot := domain.Plot{ID: id, Data: data, CreatedAt: domain.Timestamp{Time: b.now()}}

	next := make(domain.PlotList, 0, len(b.plots)+1)
	for _, p := range b.plots {
		if p.ID != id {
			next = append(next, p)
		}
	}
	b.plots = append(next, plot)
	delete(b.retained, id)
	b.current = len(b.plots) - 1
	return b.view()
}

// ReplaceCurrent swaps the payload of the selected plot, keeping its annotations.
// It reports false when nothing is selected.
func (b *Book) ReplaceCurrent(data string) (View, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current < 0 || b.current >= len(b.plots) {
		return b.view(), false
	}
	next := b.plots.Clone()
	next[b.current].Data = data
	b.plots = next
	return b.view(), true
}

// Clear empties the list after the backend announced it dropped every plot.
func (b *Book) Clear() View {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.plots = domain.PlotList{}
	b.retained = make(domain.RetainedAnnotations)
	b.current = -1
	return b.view()
}

// ToggleFavorite flips the favorite flag of id.
func (b *Book) ToggleFavorite(id domain.PlotID) (View, error) {
	return b.annotate(id, func(a domain.Annotation) domain.Annotation {
		a.IsFavorite = !a.IsFavorite
		return a
	})
}

// SetNote stores a trimmed note on id.
func (b *Book) SetNote(id domain.PlotID, note string) (View, error) {
	note = strings.TrimSpace(note)
	return b.annotate(id, func(a domain.Annotation) domain.Annotation {
		a.Note = note
		return a
	})
}

func (b *Book) annotate(id domain.PlotID, fn func(domain.Annotation) domain.Annotation) (View, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.plots.Index(id)
	if i < 0 {
		return b.view(), fmt.Errorf("%w: %s", domain.ErrUnknownPlot, id)
	}
	next := b.plots.Clone()
	a := fn(next[i].Annotation())
	next[i] = next[i].WithAnnotation(a)
	b.plots = next
	if a.IsZero() {
		delete(b.retained, id)
	} else {
		b.retained[id] = a
	}
	return b.view(), nil
}

// Select makes id the current plot.
func (b *Book) Select(id domain.PlotID) (View, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.plots.Index(id)
	if i < 0 {
		return b.view(), fmt.Errorf("%w: %s", domain.ErrUnknownPlot, id)
	}
	b.current = i
	return b.view(), nil
}

// Plot returns the plot with id.
func (b *Book) Plot(id domain.PlotID) (domain.Plot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i := b.plots.Index(id); i >= 0 {
		return b.plots[i], true
	}
	return domain.Plot{}, false
}

// View returns the current contents.
func (b *Book) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view()
}

// Retained returns a copy of the retained annotations.
func (b *Book) Retained() domain.RetainedAnnotations {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.retained.Clone()
}

func (b *Book) clamp() {
	switch {
	case len(b.plots) == 0:
		b.current = -1
	case b.current >= len(b.plots):
		b.current = len(b.plots) - 1
	case b.current < 0:
		b.current = 0
	}
}

func (b *Book) view() View {
	return View{Plots: b.plots.Clone(), Current: b.current}
}
