package descriptor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/plotbridge/pkg/ports"
	"github.com/google/uuid"
)

const (
	// SessionKey is the workspace state key holding the session identifier.
	SessionKey = "plotbridge.session.id"
	// SessionPrefix prefixes generated session identifiers.
	SessionPrefix = "plotbridge-session-"
	// DefaultLegacyName is the workspace-relative legacy descriptor.
	DefaultLegacyName = ".r_plot_config.json"
	// EnvVar tells the backend where to write its descriptor.
	EnvVar = "PLOTBRIDGE_CONFIG"
)

// SessionPaths locates the descriptors of one workspace session.
type SessionPaths struct {
	ID      string
	Primary string
	Legacy  string
}

// Layout describes where descriptors live.
type Layout struct {
	TempDir      string
	WorkspaceDir string
	LegacyName   string
}

// Paths builds the descriptor paths of the session id.
// Legacy is empty when the layout has no workspace directory.
func (l Layout) Paths(id string) SessionPaths {
	tmp := l.TempDir
	if tmp == "" {
		tmp = os.TempDir()
	}
	p := SessionPaths{ID: id, Primary: filepath.Join(tmp, id+".json")}
	if l.WorkspaceDir != "" {
		name := l.LegacyName
		if name == "" {
			name = DefaultLegacyName
		}
		p.Legacy = filepath.Join(l.WorkspaceDir, name)
	}
	return p
}

// OpenSession returns the paths of the workspace session, generating and
// persisting a new identifier on first use.
func OpenSession(state ports.WorkspaceState, layout Layout) (SessionPaths, error) {
	id, ok, err := state.Get(SessionKey)
	if err != nil {
		return SessionPaths{}, fmt.Errorf("load session id: %w", err)
	}
	if !ok || id == "" {
		id = SessionPrefix + uuid.NewString()
		if err := state.Set(SessionKey, id); err != nil {
			return SessionPaths{}, fmt.Errorf("persist session id: %w", err)
		}
	}
	return layout.Paths(id), nil
}

// ResetSession forgets the session identifier. The next OpenSession generates
// a fresh one.
func ResetSession(state ports.WorkspaceState) error {
	return state.Set(SessionKey, "")
}

// Env returns the environment assignment for the backend process.
func (p SessionPaths) Env() string {
	return EnvVar + "=" + p.Primary
}
