// Package host provides a Host collaborator for running without an editor.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aretw0/plotbridge/internal/logging"
	"github.com/aretw0/plotbridge/pkg/ports"
)

// Notification is a message shown to the user.
type Notification struct {
	Level   ports.NotifyLevel
	Message string
}

// Headless answers every dialog without user interaction.
// Saves land in the export directory when one is set, else at the default path.
type Headless struct {
	externalHost string
	exportDir    string
	format       string
	opener       func(ctx context.Context, kind string) error
	logger       *slog.Logger

	mu            sync.Mutex
	notifications []Notification
}

// Option configures a Headless host.
type Option func(*Headless)

// WithExternalHost rewrites loopback URLs to host, for backends reached
// through a forwarded address.
func WithExternalHost(host string) Option {
	return func(h *Headless) {
		h.externalHost = host
	}
}

// WithExportDir sets where saved plots are written.
func WithExportDir(dir string) Option {
	return func(h *Headless) {
		h.exportDir = dir
	}
}

// WithFormat sets the answer of the format picker.
func WithFormat(format string) Option {
	return func(h *Headless) {
		h.format = format
	}
}

// WithOpener sets how additional surfaces are opened.
func WithOpener(fn func(ctx context.Context, kind string) error) Option {
	return func(h *Headless) {
		h.opener = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Headless) {
		h.logger = logger
	}
}

// NewHeadless creates a headless host.
func NewHeadless(opts ...Option) *Headless {
	h := &Headless{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ ports.Host = (*Headless)(nil)

// ExternalURL rewrites the loopback host when an external host is configured.
func (h *Headless) ExternalURL(_ context.Context, local string) (string, error) {
	if h.externalHost == "" {
		return local, nil
	}
	return strings.Replace(local, "127.0.0.1", h.externalHost, 1), nil
}

// PickFormat returns the configured format, or the first option.
func (h *Headless) PickFormat(_ context.Context, options []string) (string, error) {
	if len(options) == 0 {
		return "", errors.New("no format options")
	}
	if h.format != "" {
		for _, o := range options {
			if strings.EqualFold(o, h.format) {
				return o, nil
			}
		}
	}
	return options[0], nil
}

// SaveData writes data and returns the path it was written to.
func (h *Headless) SaveData(_ context.Context, defaultPath string, data []byte) (string, error) {
	path := defaultPath
	if h.exportDir != "" {
		path = filepath.Join(h.exportDir, filepath.Base(defaultPath))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	h.logger.Info("plot saved", "path", path, "bytes", len(data))
	return path, nil
}

// OpenSurface delegates to the opener, if any.
func (h *Headless) OpenSurface(ctx context.Context, kind string) error {
	if h.opener == nil {
		h.logger.Info("surface requested", "kind", kind)
		return nil
	}
	return h.opener(ctx, kind)
}

// Notify logs and records the message.
func (h *Headless) Notify(_ context.Context, level ports.NotifyLevel, message string) {
	h.mu.Lock()
	h.notifications = append(h.notifications, Notification{Level: level, Message: message})
	h.mu.Unlock()

	if level == ports.NotifyError {
		h.logger.Error(message)
		return
	}
	h.logger.Info(message)
}

// Notifications returns the recorded messages, oldest first.
func (h *Headless) Notifications() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Notification(nil), h.notifications...)
}
