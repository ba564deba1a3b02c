package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AnnotationStoreContractTest verifies that an adapter complies with ports.AnnotationStore.
func AnnotationStoreContractTest(t *testing.T, store ports.AnnotationStore) {
	t.Helper()
	ctx := context.Background()
	key := "contract-" + time.Now().Format("20060102150405.000000")

	t.Run("Save and Load", func(t *testing.T) {
		in := domain.RetainedAnnotations{
			"1":   {IsFavorite: true},
			"abc": {Note: "residuals look off"},
		}
		require.NoError(t, store.Save(ctx, key, in))

		out, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("Save replaces", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, key, domain.RetainedAnnotations{"2": {Note: "only"}}))

		out, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Len(t, out, 1)
		assert.Equal(t, "only", out["2"].Note)
	})

	t.Run("Load missing", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+key)
		assert.ErrorIs(t, err, domain.ErrAnnotationsNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, key, domain.RetainedAnnotations{"1": {IsFavorite: true}}))
		require.NoError(t, store.Delete(ctx, key))

		_, err := store.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrAnnotationsNotFound)
	})

	t.Run("List", func(t *testing.T) {
		k1, k2 := key+"-1", key+"-2"
		require.NoError(t, store.Save(ctx, k1, domain.RetainedAnnotations{}))
		require.NoError(t, store.Save(ctx, k2, domain.RetainedAnnotations{"x": {Note: "n"}}))
		defer func() {
			_ = store.Delete(ctx, k1)
			_ = store.Delete(ctx, k2)
		}()

		keys, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, k1)
		assert.Contains(t, keys, k2)
	})
}
