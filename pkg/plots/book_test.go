package plots_test

import (
	"testing"
	"time"

	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/plots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	at := time.UnixMilli(1_700_000_000_000)
	return func() time.Time { return at }
}

func TestBook_AppendUsesDefaultsAndSelects(t *testing.T) {
	book := plots.NewBook(plots.WithClock(fixedClock()))
	book.Seed(domain.RetainedAnnotations{"42": {IsFavorite: true}})

	v := book.Append("data:a", domain.PlotMetadata{ID: "42"})
	require.Len(t, v.Plots, 1)
	assert.Equal(t, 0, v.Current)
	assert.False(t, v.Plots[0].IsFavorite, "append must not consult retained annotations")
	assert.Equal(t, int64(1_700_000_000_000), v.Plots[0].CreatedAt.UnixMilli())

	v = book.Append("data:b", domain.PlotMetadata{})
	assert.Equal(t, domain.PlotID("1700000000000"), v.Plots[1].ID)
	assert.Equal(t, 1, v.Current)
}

func TestBook_ReplaceCurrentKeepsAnnotations(t *testing.T) {
	book := plots.NewBook()
	book.ApplySnapshot([]domain.Plot{{ID: "1", Data: "a"}, {ID: "2", Data: "b"}})
	_, err := book.SetNote("1", "first")
	require.NoError(t, err)
	_, err = book.Select("1")
	require.NoError(t, err)

	v, ok := book.ReplaceCurrent("a2")
	require.True(t, ok)
	assert.Equal(t, "a2", v.Plots[0].Data)
	assert.Equal(t, "first", v.Plots[0].Note)
	assert.Equal(t, "b", v.Plots[1].Data)
}

func TestBook_ReplaceCurrentWithoutSelection(t *testing.T) {
	_, ok := plots.NewBook().ReplaceCurrent("x")
	assert.False(t, ok)
}

func TestBook_CurrentIndexClamped(t *testing.T) {
	book := plots.NewBook()
	v := book.ApplySnapshot([]domain.Plot{{ID: "1"}, {ID: "2"}, {ID: "3"}})
	assert.Equal(t, 0, v.Current)

	_, err := book.Select("3")
	require.NoError(t, err)
	v = book.ApplySnapshot([]domain.Plot{{ID: "1"}})
	assert.Equal(t, 0, v.Current)

	v = book.ApplySnapshot(nil)
	assert.Equal(t, -1, v.Current)
	assert.NotNil(t, v.Plots)
}

func TestBook_UnknownPlot(t *testing.T) {
	book := plots.NewBook()
	_, err := book.ToggleFavorite("nope")
	assert.ErrorIs(t, err, domain.ErrUnknownPlot)
	_, err = book.Select("nope")
	assert.ErrorIs(t, err, domain.ErrUnknownPlot)
}

func TestBook_ViewsAreIndependent(t *testing.T) {
	book := plots.NewBook()
	v := book.ApplySnapshot([]domain.Plot{{ID: "1"}})
	v.Plots[0].Note = "mutated"

	p, ok := book.Plot("1")
	require.True(t, ok)
	assert.Equal(t, "", p.Note)
}

func TestBook_SeedAppliesOnFirstSnapshot(t *testing.T) {
	book := plots.NewBook()
	book.Seed(domain.RetainedAnnotations{"7": {Note: "persisted"}, "8": {IsFavorite: true}})

	v := book.ApplySnapshot([]domain.Plot{{ID: "7"}})
	assert.Equal(t, "persisted", v.Plots[0].Note)
	assert.Equal(t, domain.RetainedAnnotations{"7": {Note: "persisted"}}, book.Retained())
}

func TestBook_ClearDropsEverything(t *testing.T) {
	book := plots.NewBook()
	book.ApplySnapshot([]domain.Plot{{ID: "1"}})
	_, _ = book.ToggleFavorite("1")

	v := book.Clear()
	assert.Empty(t, v.Plots)
	assert.Equal(t, -1, v.Current)
	assert.Empty(t, book.Retained())
	_, ok := v.CurrentPlot()
	assert.False(t, ok)
}

func TestBook_ToggleBackToDefaultForgetsEntry(t *testing.T) {
	book := plots.NewBook()
	book.ApplySnapshot([]domain.Plot{{ID: "1"}})
	_, _ = book.ToggleFavorite("1")
	assert.Len(t, book.Retained(), 1)
	_, _ = book.ToggleFavorite("1")
	assert.Empty(t, book.Retained())
}
