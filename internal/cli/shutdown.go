package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/plotbridge/internal/logging"
)

// Shutdown is the lifetime of a long-running command such as serve or mcp.
// It ends when the parent ends, when Stop is called, or when a watched signal
// arrives. The signal is kept so commands can report why they stopped.
type Shutdown struct {
	context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu  sync.Mutex
	sig os.Signal
}

// WatchShutdown starts watching signals, SIGINT and SIGTERM when none are given.
func WatchShutdown(parent context.Context, logger *slog.Logger, signals ...os.Signal) *Shutdown {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	return watch(parent, logger, ch, func() { signal.Stop(ch) })
}

func watch(parent context.Context, logger *slog.Logger, ch <-chan os.Signal, release func()) *Shutdown {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Shutdown{Context: ctx, cancel: cancel, logger: logger}
	go func() {
		defer release()
		select {
		case sig := <-ch:
			s.mu.Lock()
			s.sig = sig
			s.mu.Unlock()
			s.logger.Info("shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return s
}

// Stop ends the lifetime without a signal.
func (s *Shutdown) Stop() {
	s.cancel()
}

// Signal returns the signal that ended the lifetime, or nil.
func (s *Shutdown) Signal() os.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sig
}

// Interrupted reports whether a signal ended the lifetime.
func (s *Shutdown) Interrupted() bool {
	return s.Signal() != nil
}
