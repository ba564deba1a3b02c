package broadcast_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/plotbridge/pkg/broadcast"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSurface struct {
	id  string
	err error

	mu   sync.Mutex
	msgs []domain.SurfaceMessage
}

func (s *recordingSurface) ID() string { return s.id }

func (s *recordingSurface) Deliver(msg domain.SurfaceMessage) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSurface) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Command
	}
	return out
}

type panickingSurface struct{}

func (panickingSurface) ID() string                            { return "panics" }
func (panickingSurface) Deliver(domain.SurfaceMessage) error { panic("disposed webview") }

func TestRegistry_BroadcastIsBestEffort(t *testing.T) {
	var failures []string
	r := broadcast.NewRegistry(broadcast.WithHooks(domain.LifecycleHooks{
		OnDeliveryFailure: func(_ context.Context, id string, _ error) { failures = append(failures, id) },
	}))
	good1 := &recordingSurface{id: "a"}
	bad := &recordingSurface{id: "b", err: errors.New("gone")}
	good2 := &recordingSurface{id: "c"}
	r.Register(good1)
	r.Register(bad)
	r.Register(panickingSurface{})
	r.Register(good2)

	n := r.Broadcast(domain.ProxyStatusMessage(true))

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{domain.CmdProxyStatus}, good1.commands())
	assert.Equal(t, []string{domain.CmdProxyStatus}, good2.commands())
	assert.ElementsMatch(t, []string{"b", "panics"}, failures)
}

func TestRegistry_PostTargetsPrimary(t *testing.T) {
	r := broadcast.NewRegistry()
	gallery := &recordingSurface{id: "gallery"}
	main := &recordingSurface{id: "main"}

	assert.ErrorIs(t, r.Post(domain.DoExportMessage("png")), broadcast.ErrNoPrimary)

	r.Register(gallery)
	h := r.Register(main, broadcast.AsPrimary())

	require.NoError(t, r.Post(domain.DoExportMessage("png")))
	assert.Equal(t, []string{domain.CmdDoExport}, main.commands())
	assert.Empty(t, gallery.commands())

	h.Dispose()
	_, ok := r.Primary()
	assert.False(t, ok)
	assert.ErrorIs(t, r.Post(domain.DoExportMessage("svg")), broadcast.ErrNoPrimary)
}

func TestRegistry_DisposeIsIdempotentAndScoped(t *testing.T) {
	r := broadcast.NewRegistry()
	first := r.Register(&recordingSurface{id: "x"})
	again := &recordingSurface{id: "x"}
	second := r.Register(again)

	first.Dispose()
	first.Dispose()
	assert.Equal(t, 1, r.Count(), "stale handle must not remove the replacement")

	r.Broadcast(domain.CommandMessage(domain.CmdNextPlot))
	assert.Equal(t, []string{domain.CmdNextPlot}, again.commands())

	second.Dispose()
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 0, r.Broadcast(domain.CommandMessage(domain.CmdNextPlot)))
}

func TestRegistry_BootstrapOnRegister(t *testing.T) {
	r := broadcast.NewRegistry(broadcast.WithBootstrap(func() []domain.SurfaceMessage {
		return []domain.SurfaceMessage{
			domain.CommandMessage(domain.CmdBootstrap),
			domain.SetPortMessage(8765, "ws://127.0.0.1:8765"),
		}
	}))
	a := &recordingSurface{id: "a"}
	b := &recordingSurface{id: "b"}
	r.Register(a)
	r.Register(b)

	want := []string{domain.CmdBootstrap, domain.CmdSetPort}
	assert.Equal(t, want, a.commands())
	assert.Equal(t, want, b.commands())
	assert.Equal(t, []string{"a", "b"}, r.IDs())
}

func TestChannelSurface(t *testing.T) {
	s := broadcast.NewChannelSurface("sse-1", 1)
	require.NoError(t, s.Deliver(domain.CommandMessage("one")))
	assert.ErrorIs(t, s.Deliver(domain.CommandMessage("two")), broadcast.ErrSurfaceFull)

	msg := <-s.Messages()
	assert.Equal(t, "one", msg.Command)

	s.Close()
	s.Close()
	assert.ErrorIs(t, s.Deliver(domain.CommandMessage("three")), broadcast.ErrSurfaceClosed)
	_, open := <-s.Messages()
	assert.False(t, open)
}
