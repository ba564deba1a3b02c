package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/plotbridge/pkg/domain"
)

// LogHooks logs lifecycle events.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(ctx context.Context, from, to domain.ConnectionState) {
			logger.InfoContext(ctx, "connection", "from", from.String(), "to", to.String(), "port", to.Port)
		},
		OnSnapshot: func(ctx context.Context, plots domain.PlotList) {
			logger.DebugContext(ctx, "plot list reconciled", "plots", len(plots))
		},
		OnFrameDropped: func(ctx context.Context, reason string) {
			logger.DebugContext(ctx, "frame dropped", "reason", reason)
		},
		OnDeliveryFailure: func(ctx context.Context, surfaceID string, err error) {
			logger.DebugContext(ctx, "surface delivery failed", "surface", surfaceID, "err", err)
		},
		OnRelayFallback: func(ctx context.Context, port int) {
			logger.InfoContext(ctx, "relay fallback", "port", port)
		},
	}
}

// Chain runs every set of hooks in order.
func Chain(all ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range all {
		if fn := h.OnStateChange; fn != nil {
			prev := out.OnStateChange
			out.OnStateChange = func(ctx context.Context, from, to domain.ConnectionState) {
				if prev != nil {
					prev(ctx, from, to)
				}
				fn(ctx, from, to)
			}
		}
		if fn := h.OnSnapshot; fn != nil {
			prev := out.OnSnapshot
			out.OnSnapshot = func(ctx context.Context, plots domain.PlotList) {
				if prev != nil {
					prev(ctx, plots)
				}
				fn(ctx, plots)
			}
		}
		if fn := h.OnFrameDropped; fn != nil {
			prev := out.OnFrameDropped
			out.OnFrameDropped = func(ctx context.Context, reason string) {
				if prev != nil {
					prev(ctx, reason)
				}
				fn(ctx, reason)
			}
		}
		if fn := h.OnDeliveryFailure; fn != nil {
			prev := out.OnDeliveryFailure
			out.OnDeliveryFailure = func(ctx context.Context, id string, err error) {
				if prev != nil {
					prev(ctx, id, err)
				}
				fn(ctx, id, err)
			}
		}
		if fn := h.OnRelayFallback; fn != nil {
			prev := out.OnRelayFallback
			out.OnRelayFallback = func(ctx context.Context, port int) {
				if prev != nil {
					prev(ctx, port)
				}
				fn(ctx, port)
			}
		}
	}
	return out
}
