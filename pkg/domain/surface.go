package domain

import "encoding/json"

// Commands broadcast or posted to presentation surfaces.
const (
	CmdBootstrap        = "bootstrap"
	CmdSetPort          = "set_port"
	CmdSetActiveFile    = "set_active_file"
	CmdStoreActiveFile  = "store_active_file"
	CmdProxyStatus      = "ws_proxy_status"
	CmdProxyMessage     = "ws_proxy_message"
	CmdConnectionStatus = "connection_status"
	CmdPlotState        = "plot_state"
	CmdRefreshLayout    = "refresh_layout"
	CmdDoExport         = "do_export"
	CmdNextPlot         = "next_plot"
	CmdPreviousPlot     = "previous_plot"
	CmdClearPlots       = "clear_plots"
	CmdExportPlot       = "export_plot"
)

// SurfaceMessage is delivered to presentation surfaces.
type SurfaceMessage struct {
	Command      string           `json:"command"`
	Port         int              `json:"port,omitempty"`
	WsURL        string           `json:"wsUrl,omitempty"`
	FilePath     string           `json:"filePath,omitempty"`
	Connected    *bool            `json:"connected,omitempty"`
	Status       string           `json:"status,omitempty"`
	State        *ConnectionState `json:"state,omitempty"`
	Data         json.RawMessage  `json:"data,omitempty"`
	Format       string           `json:"format,omitempty"`
	Plots        *PlotList        `json:"plots,omitempty"`
	CurrentIndex *int             `json:"currentIndex,omitempty"`
}

// SetPortMessage announces the resolved backend endpoint.
func SetPortMessage(port int, wsURL string) SurfaceMessage {
	return SurfaceMessage{Command: CmdSetPort, Port: port, WsURL: wsURL}
}

// ProxyStatusMessage reports relay connectivity.
func ProxyStatusMessage(connected bool) SurfaceMessage {
	return SurfaceMessage{Command: CmdProxyStatus, Connected: &connected}
}

// ProxyFrameMessage forwards a parsed relay frame verbatim.
func ProxyFrameMessage(frame json.RawMessage) SurfaceMessage {
	return SurfaceMessage{Command: CmdProxyMessage, Data: frame}
}

// ConnectionStatusMessage reports the Connection Manager state.
func ConnectionStatusMessage(state ConnectionState) SurfaceMessage {
	connected := state.Connected()
	return SurfaceMessage{
		Command:   CmdConnectionStatus,
		Connected: &connected,
		Status:    state.StatusLabel(),
		State:     &state,
	}
}

// PlotStateMessage carries the merged plot list.
func PlotStateMessage(plots PlotList, current int) SurfaceMessage {
	list := plots.Clone()
	return SurfaceMessage{Command: CmdPlotState, Plots: &list, CurrentIndex: &current}
}

// ActiveFileMessage carries the active file under the given command.
func ActiveFileMessage(command, path string) SurfaceMessage {
	return SurfaceMessage{Command: command, FilePath: path}
}

// DoExportMessage asks a surface to export the current plot in format.
func DoExportMessage(format string) SurfaceMessage {
	return SurfaceMessage{Command: CmdDoExport, Format: format}
}

// CommandMessage is a bare command forward such as next_plot.
func CommandMessage(command string) SurfaceMessage {
	return SurfaceMessage{Command: command}
}

// Surface action commands.
const (
	ActRequestConfig  = "request_config"
	ActGetPlots       = "get_plots"
	ActToggleFavorite = "toggle_favorite"
	ActSetNote        = "set_note"
	ActDeletePlot     = "delete_plot"
	ActSelectPlot     = "select_plot"
	ActResize         = "resize"
	ActClearAll       = "clear_all"
	ActRequestExport  = "request_export"
	ActSaveData       = "save_data"
	ActExportPlot     = "export_plot"
	ActOpenNewWindow  = "open_new_window"
	ActInfo           = "info"
)

// Action is a request sent by a surface.
type Action struct {
	Command string `json:"command"`
	PlotID  PlotID `json:"plot_id,omitempty"`
	Note    string `json:"note,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Format  string `json:"format,omitempty"`
	Data    string `json:"data,omitempty"`
	Text    string `json:"text,omitempty"`
}
