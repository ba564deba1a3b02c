package ports

import (
	"context"

	"github.com/aretw0/plotbridge/pkg/domain"
)

// Surface is a presentation sink registered with the broadcaster.
type Surface interface {
	// ID identifies the surface in logs and metrics.
	ID() string

	// Deliver hands a message to the surface. It must not block for long;
	// slow surfaces are expected to buffer or drop.
	Deliver(msg domain.SurfaceMessage) error
}

// NotifyLevel classifies host notifications.
type NotifyLevel string

const (
	NotifyInfo  NotifyLevel = "info"
	NotifyError NotifyLevel = "error"
)

// Host is the privileged collaborator that owns dialogs, files and windows.
type Host interface {
	// ExternalURL translates a locally reachable URL into one reachable from surfaces.
	ExternalURL(ctx context.Context, local string) (string, error)

	// PickFormat asks the user to choose one of options. An empty result means cancelled.
	PickFormat(ctx context.Context, options []string) (string, error)

	// SaveData asks for a destination, starting at defaultPath, and writes data there.
	// It returns the chosen path, or "" when the user cancelled.
	SaveData(ctx context.Context, defaultPath string, data []byte) (string, error)

	// OpenSurface opens an additional presentation surface of the given kind.
	OpenSurface(ctx context.Context, kind string) error

	// Notify shows a one-shot message to the user.
	Notify(ctx context.Context, level NotifyLevel, message string)
}
