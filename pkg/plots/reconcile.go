// Package plots merges backend plot lists with client-held annotations.
package plots

import "github.com/aretw0/plotbridge/pkg/domain"

// Reconcile rebuilds a plot list from an authoritative backend snapshot.
//
// Backend order is kept. For every item the note and favorite flag come from
// retained when an entry exists for its identifier, and take their defaults
// otherwise; whatever the backend sent for those fields is ignored. Items
// without an identifier get one from gen. When the snapshot repeats an
// identifier, only its last occurrence is kept, at that occurrence's position.
func Reconcile(snapshot []domain.Plot, retained domain.RetainedAnnotations, gen *domain.IDGenerator) domain.PlotList {
	if gen == nil {
		gen = &domain.IDGenerator{}
	}

	items := make([]domain.Plot, len(snapshot))
	copy(items, snapshot)

	last := make(map[domain.PlotID]int, len(items))
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = gen.Next()
		}
		last[items[i].ID] = i
	}

	out := make(domain.PlotList, 0, len(last))
	for i, item := range items {
		if last[item.ID] != i {
			continue
		}
		out = append(out, item.WithAnnotation(retained[item.ID]))
	}
	return out
}
