package domain

import "context"

// LifecycleHooks defines callbacks for bridge observability.
// Every hook is optional.
type LifecycleHooks struct {
	OnStateChange     func(ctx context.Context, from, to ConnectionState)
	OnSnapshot        func(ctx context.Context, plots PlotList)
	OnFrameDropped    func(ctx context.Context, reason string)
	OnDeliveryFailure func(ctx context.Context, surfaceID string, err error)
	OnRelayFallback   func(ctx context.Context, port int)
}
