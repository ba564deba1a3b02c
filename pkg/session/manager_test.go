package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/plotbridge/pkg/adapters/memory"
	"github.com/aretw0/plotbridge/pkg/adapters/redis"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/session"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke lost updates if locking is missing.
type SlowStore struct {
	data map[string]domain.RetainedAnnotations
	mu   sync.Mutex
}

func (s *SlowStore) Save(ctx context.Context, key string, a domain.RetainedAnnotations) error {
	time.Sleep(2 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]domain.RetainedAnnotations)
	}
	s.data[key] = a.Clone()
	return nil
}

func (s *SlowStore) Load(ctx context.Context, key string) (domain.RetainedAnnotations, error) {
	time.Sleep(2 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.data[key]; ok {
		return a.Clone(), nil
	}
	return nil, domain.ErrAnnotationsNotFound
}

func (s *SlowStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *SlowStore) List(ctx context.Context) ([]string, error) {
	return nil, nil
}

func TestManager_UpdateSerializes(t *testing.T) {
	manager := session.NewManager(&SlowStore{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := manager.Update(ctx, "race", func(a domain.RetainedAnnotations) domain.RetainedAnnotations {
				a[domain.PlotID(fmt.Sprint(i))] = domain.Annotation{IsFavorite: true}
				return a
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	out, err := manager.Load(ctx, "race")
	require.NoError(t, err)
	assert.Len(t, out, 20)
}

func TestManager_LoadMissingIsEmpty(t *testing.T) {
	manager := session.NewManager(memory.NewStore())

	out, err := manager.Load(context.Background(), "never-saved")
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

type failingStore struct{ SlowStore }

func (f *failingStore) Load(ctx context.Context, key string) (domain.RetainedAnnotations, error) {
	return nil, errors.New("disk on fire")
}

func TestManager_UpdatePropagatesLoadErrors(t *testing.T) {
	manager := session.NewManager(&failingStore{})
	called := false
	_, err := manager.Update(context.Background(), "k", func(a domain.RetainedAnnotations) domain.RetainedAnnotations {
		called = true
		return a
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestManager_DistributedLocker(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redis.NewFromClient(client)
	manager := session.NewManager(store,
		session.WithLocker(redis.NewLocker(client, "test:")),
		session.WithLockTTL(time.Second),
	)
	ctx := context.Background()

	err = manager.WithLock(ctx, "shared", func(ctx context.Context) error {
		assert.True(t, mr.Exists("test:lock:shared"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:lock:shared"))

	_, err = manager.Update(ctx, "shared", func(a domain.RetainedAnnotations) domain.RetainedAnnotations {
		a["1"] = domain.Annotation{Note: "from replica"}
		return a
	})
	require.NoError(t, err)

	loaded, err := store.Load(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "from replica", loaded["1"].Note)
}
