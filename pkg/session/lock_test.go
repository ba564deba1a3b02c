package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/plotbridge/pkg/domain"
)

type nopStore struct{}

func (nopStore) Save(ctx context.Context, key string, a domain.RetainedAnnotations) error {
	return nil
}
func (nopStore) Load(ctx context.Context, key string) (domain.RetainedAnnotations, error) {
	return nil, domain.ErrAnnotationsNotFound
}
func (nopStore) Delete(ctx context.Context, key string) error { return nil }
func (nopStore) List(ctx context.Context) ([]string, error)   { return nil, nil }

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(nopStore{})
	ctx := context.Background()

	for i := 0; i < 10000; i++ {
		key := fmt.Sprintf("session-%d", i)
		_ = mgr.Save(ctx, key, domain.RetainedAnnotations{})
		_ = mgr.Delete(ctx, key)
	}

	if n := len(mgr.locks); n != 0 {
		t.Errorf("expected no locks after release, found %d", n)
	}
}
