package relay_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/plotbridge/internal/testutils"
	"github.com/aretw0/plotbridge/pkg/adapters/ws"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/relay"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type events struct {
	mu       sync.Mutex
	statuses []bool
	frames   []string
}

func (e *events) handler() relay.Handler {
	return relay.Handler{
		OnStatus: func(c bool) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.statuses = append(e.statuses, c)
		},
		OnMessage: func(f json.RawMessage) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.frames = append(e.frames, string(f))
		},
	}
}

func (e *events) snapshot() ([]bool, []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bool(nil), e.statuses...), append([]string(nil), e.frames...)
}

func (e *events) last() (bool, bool) {
	s, _ := e.snapshot()
	if len(s) == 0 {
		return false, false
	}
	return s[len(s)-1], true
}

func newRelay(ev *events) *relay.Relay {
	return relay.New(ws.NewDialer(),
		relay.WithHandler(ev.handler()),
		relay.WithBackOff(backoff.NewConstantBackOff(20*time.Millisecond)),
	)
}

func connected(ev *events) func() bool {
	return func() bool {
		c, ok := ev.last()
		return ok && c
	}
}

func TestRelay_StartAnnouncesAndRequestsPlots(t *testing.T) {
	backend := testutils.NewBackend(t)
	ev := &events{}
	r := newRelay(ev)
	defer r.Stop()

	require.NoError(t, r.Start(backend.Port()))
	require.Eventually(t, connected(ev), testutils.Wait, testutils.Tick)

	statuses, _ := ev.snapshot()
	assert.Equal(t, []bool{false, true}, statuses)
	assert.Eventually(t, func() bool {
		types := backend.Types()
		return len(types) == 1 && types[0] == domain.MsgGetPlots
	}, testutils.Wait, testutils.Tick)
}

func TestRelay_ForwardsValidFramesOnly(t *testing.T) {
	backend := testutils.NewBackend(t)
	ev := &events{}
	r := newRelay(ev)
	defer r.Stop()

	require.NoError(t, r.Start(backend.Port()))
	require.Eventually(t, connected(ev), testutils.Wait, testutils.Tick)

	backend.Push(`not json`)
	backend.Push(`{"type":"clear_plots"}`)

	assert.Eventually(t, func() bool {
		_, frames := ev.snapshot()
		return len(frames) == 1 && frames[0] == `{"type":"clear_plots"}`
	}, testutils.Wait, testutils.Tick)
}

func TestRelay_StartSamePortIsIdempotent(t *testing.T) {
	backend := testutils.NewBackend(t)
	ev := &events{}
	r := newRelay(ev)
	defer r.Stop()

	require.NoError(t, r.Start(backend.Port()))
	require.Eventually(t, connected(ev), testutils.Wait, testutils.Tick)

	require.NoError(t, r.Start(backend.Port()))
	statuses, _ := ev.snapshot()
	assert.Equal(t, []bool{false, true, true}, statuses)
	assert.Equal(t, 1, backend.Accepts())
}

func TestRelay_ReconnectsAfterDrop(t *testing.T) {
	backend := testutils.NewBackend(t)
	ev := &events{}
	r := newRelay(ev)
	defer r.Stop()

	require.NoError(t, r.Start(backend.Port()))
	require.Eventually(t, connected(ev), testutils.Wait, testutils.Tick)

	backend.DropAll()

	assert.Eventually(t, func() bool {
		statuses, _ := ev.snapshot()
		return len(statuses) == 4
	}, testutils.Wait, testutils.Tick)
	statuses, _ := ev.snapshot()
	assert.Equal(t, []bool{false, true, false, true}, statuses)
	assert.Equal(t, 2, backend.Accepts())
}

func TestRelay_StopEndsLoopAndSilencesSocket(t *testing.T) {
	backend := testutils.NewBackend(t)
	ev := &events{}
	r := newRelay(ev)

	require.NoError(t, r.Start(backend.Port()))
	require.Eventually(t, connected(ev), testutils.Wait, testutils.Tick)

	r.Stop()
	backend.Push(`{"type":"clear_plots"}`)
	time.Sleep(100 * time.Millisecond)

	statuses, frames := ev.snapshot()
	assert.Equal(t, []bool{false, true, false}, statuses)
	assert.Empty(t, frames)
	assert.Equal(t, 0, r.Port())
	assert.Equal(t, 1, backend.Accepts())
}

func TestRelay_SendSelfHeals(t *testing.T) {
	ev := &events{}
	r := newRelay(ev)
	defer r.Stop()

	assert.ErrorIs(t, r.Send([]byte(`{"type":"get_plots"}`)), domain.ErrNotConnected)

	backend := testutils.NewBackend(t)
	require.NoError(t, r.Start(backend.Port()))
	require.Eventually(t, connected(ev), testutils.Wait, testutils.Tick)

	require.NoError(t, r.Send([]byte(`{"type":"clear_all"}`)))
	assert.Eventually(t, func() bool {
		types := backend.Types()
		return len(types) == 2 && types[1] == domain.MsgClearAll
	}, testutils.Wait, testutils.Tick)
}

func TestRelay_BoundedPolicyStopsRetrying(t *testing.T) {
	backend := testutils.NewBackend(t)
	port := backend.Port()
	backend.Close()

	ev := &events{}
	r := relay.New(ws.NewDialer(),
		relay.WithHandler(ev.handler()),
		relay.WithBackOff(backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 0)),
	)
	defer r.Stop()

	require.NoError(t, r.Start(port))
	require.Eventually(t, func() bool {
		statuses, _ := ev.snapshot()
		return len(statuses) == 2
	}, testutils.Wait, testutils.Tick)

	time.Sleep(100 * time.Millisecond)
	statuses, _ := ev.snapshot()
	assert.Equal(t, []bool{false, false}, statuses)
	assert.Equal(t, port, r.Port())
}

func TestRelay_InvalidPort(t *testing.T) {
	r := relay.New(ws.NewDialer())
	assert.ErrorIs(t, r.Start(0), domain.ErrInvalidPort)
	assert.ErrorIs(t, r.Start(70000), domain.ErrInvalidPort)
}

func TestRelay_RestartReplacesPendingReconnect(t *testing.T) {
	port := testutils.HangingListener(t)
	ev := &events{}
	r := newRelay(ev)
	defer r.Stop()

	require.NoError(t, r.Start(port))
	// Non-forced start while the attempt is in flight leaves it alone.
	require.NoError(t, r.Start(port))
	statuses, _ := ev.snapshot()
	assert.Equal(t, []bool{false}, statuses)

	require.NoError(t, r.Restart(port))
	statuses, _ = ev.snapshot()
	assert.Equal(t, []bool{false, false}, statuses)
}
