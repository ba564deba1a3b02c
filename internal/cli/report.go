package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/plotbridge/internal/config"
	"github.com/aretw0/plotbridge/pkg/descriptor"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/ports"
	"github.com/joho/godotenv"
)

// Report describes a workspace session without connecting to anything.
type Report struct {
	Session     string `json:"session"`
	Descriptor  string `json:"descriptor"`
	Legacy      string `json:"legacy,omitempty"`
	Port        int    `json:"port,omitempty"`
	Discovered  bool   `json:"discovered"`
	Annotations int    `json:"annotations"`
	Favorites   int    `json:"favorites"`
	Store       string `json:"store"`
	Listen      string `json:"listen"`
}

// BuildReport reads the session descriptors and stored annotations of cfg.
func BuildReport(ctx context.Context, cfg config.Config, state ports.WorkspaceState, store ports.AnnotationStore) (Report, error) {
	paths, err := descriptor.OpenSession(state, cfg.Layout())
	if err != nil {
		return Report{}, err
	}
	rep := Report{
		Session:    paths.ID,
		Descriptor: paths.Primary,
		Legacy:     paths.Legacy,
		Store:      cfg.Store.Backend,
		Listen:     cfg.Listen,
		Port:       cfg.Port,
		Discovered: cfg.Port != 0,
	}
	if cfg.Port == 0 {
		rep.Port, rep.Discovered = descriptor.NewResolver(paths).Current()
	}

	retained, err := store.Load(ctx, paths.ID)
	switch {
	case errors.Is(err, domain.ErrAnnotationsNotFound):
	case err != nil:
		return rep, fmt.Errorf("load annotations: %w", err)
	default:
		rep.Annotations = len(retained)
		for _, a := range retained {
			if a.IsFavorite {
				rep.Favorites++
			}
		}
	}
	return rep, nil
}

// Markdown renders the report for glamour.
func (r Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# plotbridge session\n\n")
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Session | `%s` |\n", r.Session)
	fmt.Fprintf(&b, "| Descriptor | `%s` |\n", r.Descriptor)
	if r.Legacy != "" {
		fmt.Fprintf(&b, "| Legacy descriptor | `%s` |\n", r.Legacy)
	}
	if r.Discovered {
		fmt.Fprintf(&b, "| Backend port | %d |\n", r.Port)
	} else {
		b.WriteString("| Backend port | not announced |\n")
	}
	fmt.Fprintf(&b, "| Annotations | %d (%d favorites) |\n", r.Annotations, r.Favorites)
	fmt.Fprintf(&b, "| Store | %s |\n", r.Store)
	fmt.Fprintf(&b, "| Surfaces | http://%s/ |\n", r.Listen)
	return b.String()
}

// WriteEnvFile merges the descriptor variable of paths into the dotenv file
// at path, keeping every other entry.
func WriteEnvFile(path string, paths descriptor.SessionPaths) error {
	values, err := godotenv.Read(path)
	if err != nil {
		values = map[string]string{}
	}
	values[descriptor.EnvVar] = paths.Primary
	if err := godotenv.Write(values, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
