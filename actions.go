package plotbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/plotbridge/pkg/broadcast"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/export"
	"github.com/aretw0/plotbridge/pkg/plots"
	"github.com/aretw0/plotbridge/pkg/ports"
)

// minResize is the smallest dimension forwarded to the backend; hidden
// surfaces report degenerate sizes.
const minResize = 50

// GallerySurface is the kind requested by open_new_window.
const GallerySurface = "gallery"

// HandleAction executes a request coming from a surface.
func (b *Bridge) HandleAction(ctx context.Context, a domain.Action) error {
	switch a.Command {
	case domain.ActRequestConfig:
		b.RequestConfig(ctx)
		return nil
	case domain.ActGetPlots:
		b.publishCurrent()
		return b.conn.Send(ctx, domain.GetPlots())
	case domain.ActToggleFavorite:
		return b.annotate(ctx, func() (plots.View, error) { return b.book.ToggleFavorite(a.PlotID) })
	case domain.ActSetNote:
		return b.annotate(ctx, func() (plots.View, error) { return b.book.SetNote(a.PlotID, a.Note) })
	case domain.ActDeletePlot:
		if a.PlotID == "" {
			return fmt.Errorf("%w: missing plot id", domain.ErrUnknownPlot)
		}
		// The plot stays listed until the backend sends a snapshot without it.
		return b.conn.Send(ctx, domain.DeletePlot(a.PlotID))
	case domain.ActSelectPlot:
		view, err := b.book.Select(a.PlotID)
		if err != nil {
			return err
		}
		b.publish(view)
		return nil
	case domain.ActResize:
		return b.Resize(ctx, a.Width, a.Height)
	case domain.ActClearAll:
		return b.conn.Send(ctx, domain.ClearAll())
	case domain.ActRequestExport:
		return b.RequestExport(ctx)
	case domain.ActSaveData:
		return b.SaveData(ctx, a.Data, a.Format)
	case domain.ActExportPlot:
		return b.ExportPlot(ctx, a.PlotID, a.Format)
	case domain.ActOpenNewWindow:
		return b.host.OpenSurface(ctx, GallerySurface)
	case domain.ActInfo:
		if a.Text != "" {
			b.host.Notify(ctx, ports.NotifyInfo, a.Text)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownAction, a.Command)
	}
}

func (b *Bridge) annotate(ctx context.Context, fn func() (plots.View, error)) error {
	view, err := fn()
	if err != nil {
		return err
	}
	b.publish(view)
	b.persist(ctx)
	return nil
}

func (b *Bridge) publishCurrent() {
	b.publish(b.book.View())
}

// Resize records the surface size and forwards it when both sides exceed
// minResize. The last size is re-sent after every reconnect.
func (b *Bridge) Resize(ctx context.Context, width, height int) error {
	if width <= minResize || height <= minResize {
		return nil
	}
	b.mu.Lock()
	b.resize = &domain.Action{Command: domain.ActResize, Width: width, Height: height}
	b.mu.Unlock()
	return b.sendResize(ctx, width, height)
}

func (b *Bridge) sendResize(ctx context.Context, width, height int) error {
	var id *domain.PlotID
	if plot, ok := b.book.View().CurrentPlot(); ok {
		id = &plot.ID
	}
	err := b.conn.Send(ctx, domain.Resize(width, height, id))
	if err != nil {
		b.logger.Debug("resize not sent", "err", err)
	}
	return err
}

// RequestExport asks the host for a format and tells the primary surface to
// export the current plot in it.
func (b *Bridge) RequestExport(ctx context.Context) error {
	choice, err := b.host.PickFormat(ctx, export.Choices)
	if err != nil {
		return fmt.Errorf("pick export format: %w", err)
	}
	if choice == "" {
		return nil
	}
	f, err := export.ParseFormat(choice)
	if err != nil {
		return err
	}
	b.post(domain.DoExportMessage(string(f)))
	return nil
}

// SaveData decodes a data-URL payload and saves it through the host.
// The outcome is reported to the user as a notification.
func (b *Bridge) SaveData(ctx context.Context, payload, format string) error {
	f, err := export.ParseFormat(format)
	if err != nil {
		b.notifyFailure(ctx, err)
		return err
	}
	data, err := export.Decode(payload)
	if err != nil {
		b.notifyFailure(ctx, err)
		return err
	}
	path, err := b.host.SaveData(ctx, export.DefaultPath(b.workspaceDir, f), data)
	if err != nil {
		b.notifyFailure(ctx, err)
		return fmt.Errorf("save plot: %w", err)
	}
	if path == "" {
		return nil
	}
	b.logger.Info("plot saved", "path", path, "format", f)
	b.host.Notify(ctx, ports.NotifyInfo, export.SavedMessage(f))
	return nil
}

// ExportPlot saves a plot without a surface round trip. An empty id exports
// the current plot; an empty format uses the default format.
func (b *Bridge) ExportPlot(ctx context.Context, id domain.PlotID, format string) error {
	var plot domain.Plot
	var ok bool
	if id == "" {
		plot, ok = b.book.View().CurrentPlot()
	} else {
		plot, ok = b.book.Plot(id)
	}
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownPlot, id)
	}

	f := b.defaultFormat
	if format != "" {
		parsed, err := export.ParseFormat(format)
		if err != nil {
			return err
		}
		f = parsed
	}
	return b.SaveData(ctx, plot.Data, string(export.Resolve(plot.Data, f)))
}

func (b *Bridge) notifyFailure(ctx context.Context, err error) {
	b.logger.Error("plot save failed", "err", err)
	b.host.Notify(ctx, ports.NotifyError, export.FailedMessage(err))
}

var forwardedCommands = map[string]bool{
	domain.CmdNextPlot:     true,
	domain.CmdPreviousPlot: true,
	domain.CmdClearPlots:   true,
	domain.CmdExportPlot:   true,
}

// Command forwards an external command (next_plot, previous_plot,
// clear_plots, export_plot) to the primary surface.
func (b *Bridge) Command(cmd string) error {
	cmd = strings.TrimSpace(cmd)
	if !forwardedCommands[cmd] {
		return fmt.Errorf("%w: %q", domain.ErrUnknownAction, cmd)
	}
	b.post(domain.CommandMessage(cmd))
	return nil
}

// post delivers to the primary surface, or to every surface when none is primary.
func (b *Bridge) post(msg domain.SurfaceMessage) {
	err := b.registry.Post(msg)
	if errors.Is(err, broadcast.ErrNoPrimary) {
		b.registry.Broadcast(msg)
		return
	}
	if err != nil {
		b.logger.Debug("post failed", "command", msg.Command, "err", err)
	}
}
