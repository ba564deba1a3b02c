package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/plotbridge"
	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/plots"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// PlotsURI is the resource exposing the merged plot list.
const PlotsURI = "plotbridge://plots"

// Bridge is the part of plotbridge.Bridge the MCP server drives.
type Bridge interface {
	View() plots.View
	Status() plotbridge.Status
	HandleAction(ctx context.Context, a domain.Action) error
}

// PlotSummary describes a plot without its payload unless asked for.
type PlotSummary struct {
	ID         domain.PlotID    `json:"id" jsonschema_description:"Stable plot identifier"`
	CreatedAt  domain.Timestamp `json:"timestamp"`
	Note       string           `json:"note"`
	IsFavorite bool             `json:"isFavorite"`
	Current    bool             `json:"current"`
	Size       int              `json:"size" jsonschema_description:"Payload length in bytes"`
	Data       string           `json:"data,omitempty"`
}

// ListResponse is returned by list_plots.
type ListResponse struct {
	Plots   []PlotSummary `json:"plots"`
	Current int           `json:"currentIndex" jsonschema_description:"Index of the selected plot, -1 when empty"`
}

// ActionResponse is returned by mutating tools.
type ActionResponse struct {
	OK      bool   `json:"ok"`
	Command string `json:"command"`
}

type listArgs struct {
	IncludeData bool `json:"include_data"`
}

type plotArgs struct {
	PlotID string `json:"plot_id"`
	Note   string `json:"note"`
}

// Server exposes a Bridge as an MCP server.
type Server struct {
	bridge    Bridge
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(bridge Bridge, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		bridge:    bridge,
		mcpServer: server.NewMCPServer("plotbridge-mcp", strings.TrimSpace(plotbridge.Version)),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://" + addr
	if strings.HasPrefix(addr, ":") {
		baseURL = "http://localhost" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_plots",
		mcp.WithDescription("List the plots currently shown, with notes and favorites."),
		mcp.WithBoolean("include_data", mcp.Description("Include the data-URL payload of every plot")),
		mcp.WithOutputSchema[ListResponse](),
	), mcp.NewStructuredToolHandler(s.handleList))

	s.mcpServer.AddTool(mcp.NewTool("toggle_favorite",
		mcp.WithDescription("Flip the favorite flag of a plot."),
		mcp.WithString("plot_id", mcp.Required(), mcp.Description("Plot identifier")),
		mcp.WithOutputSchema[ActionResponse](),
	), mcp.NewStructuredToolHandler(s.action(domain.ActToggleFavorite)))

	s.mcpServer.AddTool(mcp.NewTool("set_note",
		mcp.WithDescription("Attach a note to a plot. An empty note clears it."),
		mcp.WithString("plot_id", mcp.Required(), mcp.Description("Plot identifier")),
		mcp.WithString("note", mcp.Description("Note text")),
		mcp.WithOutputSchema[ActionResponse](),
	), mcp.NewStructuredToolHandler(s.action(domain.ActSetNote)))

	s.mcpServer.AddTool(mcp.NewTool("delete_plot",
		mcp.WithDescription("Ask the backend to delete a plot. The list updates once the backend confirms."),
		mcp.WithString("plot_id", mcp.Required(), mcp.Description("Plot identifier")),
		mcp.WithOutputSchema[ActionResponse](),
	), mcp.NewStructuredToolHandler(s.action(domain.ActDeletePlot)))

	s.mcpServer.AddTool(mcp.NewTool("clear_all",
		mcp.WithDescription("Ask the backend to delete every plot."),
		mcp.WithOutputSchema[ActionResponse](),
	), mcp.NewStructuredToolHandler(s.action(domain.ActClearAll)))

	s.mcpServer.AddTool(mcp.NewTool("connection_status",
		mcp.WithDescription("Report the backend connection and session."),
		mcp.WithOutputSchema[plotbridge.Status](),
	), mcp.NewStructuredToolHandler(s.handleStatus))
}

func (s *Server) handleList(_ context.Context, _ mcp.CallToolRequest, args listArgs) (ListResponse, error) {
	return summarize(s.bridge.View(), args.IncludeData), nil
}

func (s *Server) handleStatus(context.Context, mcp.CallToolRequest, struct{}) (plotbridge.Status, error) {
	return s.bridge.Status(), nil
}

func (s *Server) action(command string) func(context.Context, mcp.CallToolRequest, plotArgs) (ActionResponse, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest, args plotArgs) (ActionResponse, error) {
		a := domain.Action{Command: command, PlotID: domain.PlotID(args.PlotID), Note: args.Note}
		if err := s.bridge.HandleAction(ctx, a); err != nil {
			s.logger.Debug("MCP action failed", "command", command, "err", err)
			return ActionResponse{}, fmt.Errorf("%s: %w", command, err)
		}
		return ActionResponse{OK: true, Command: command}, nil
	}
}

func summarize(view plots.View, withData bool) ListResponse {
	out := ListResponse{Plots: make([]PlotSummary, 0, len(view.Plots)), Current: view.Current}
	for i, p := range view.Plots {
		sum := PlotSummary{
			ID:         p.ID,
			CreatedAt:  p.CreatedAt,
			Note:       p.Note,
			IsFavorite: p.IsFavorite,
			Current:    i == view.Current,
			Size:       len(p.Data),
		}
		if withData {
			sum.Data = p.Data
		}
		out.Plots = append(out.Plots, sum)
	}
	return out
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(PlotsURI, "Current plot list",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(summarize(s.bridge.View(), false))
		if err != nil {
			return nil, fmt.Errorf("encode plots: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      PlotsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
