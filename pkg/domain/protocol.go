package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Backend message types sent by the bridge.
const (
	MsgGetPlots      = "get_plots"
	MsgSetActiveFile = "set_active_file"
	MsgResize        = "resize"
	MsgDeletePlot    = "delete_plot"
	MsgClearAll      = "clear_all"
)

// Backend message types received by the bridge.
const (
	MsgNewPlot    = "new_plot"
	MsgUpdatePlot = "update_plot"
	MsgClearPlots = "clear_plots"
	MsgPlotList   = "plot_list"
)

// Outbound is a frame written to the backend.
type Outbound struct {
	Type     string  `json:"type"`
	FilePath string  `json:"filePath,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	PlotID   *PlotID `json:"plot_id,omitempty"`
}

// MarshalJSON keeps plot_id on resize frames even when no plot is selected.
func (o Outbound) MarshalJSON() ([]byte, error) {
	type wire Outbound
	if o.Type != MsgResize {
		return json.Marshal(wire(o))
	}
	return json.Marshal(struct {
		wire
		PlotID *PlotID `json:"plot_id"`
	}{wire(o), o.PlotID})
}

// GetPlots requests the current plot list.
func GetPlots() Outbound { return Outbound{Type: MsgGetPlots} }

// SetActiveFile tells the backend which source file is focused.
func SetActiveFile(path string) Outbound {
	return Outbound{Type: MsgSetActiveFile, FilePath: path}
}

// Resize asks the backend to redraw at the given size. plot may be nil.
func Resize(width, height int, plot *PlotID) Outbound {
	return Outbound{Type: MsgResize, Width: width, Height: height, PlotID: plot}
}

// DeletePlot asks the backend to drop a plot.
func DeletePlot(id PlotID) Outbound {
	return Outbound{Type: MsgDeletePlot, PlotID: &id}
}

// ClearAll asks the backend to drop every plot.
func ClearAll() Outbound { return Outbound{Type: MsgClearAll} }

// Inbound is a frame received from the backend.
type Inbound struct {
	Type     string         `json:"type"`
	Data     string         `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Plots    []Plot         `json:"plots,omitempty"`
}

// PlotMetadata is the typed view of a new_plot metadata object.
type PlotMetadata struct {
	ID PlotID `mapstructure:"id"`
}

// PlotMetadata decodes the metadata of a new_plot frame.
// Unknown keys are ignored; numeric identifiers become their decimal form.
func (in Inbound) PlotMetadata() (PlotMetadata, error) {
	var meta PlotMetadata
	if len(in.Metadata) == 0 {
		return meta, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &meta,
	})
	if err != nil {
		return meta, err
	}
	if err := decoder.Decode(in.Metadata); err != nil {
		return meta, fmt.Errorf("%w: metadata: %v", ErrMalformedFrame, err)
	}
	return meta, nil
}

// DecodeInbound parses a backend text frame.
func DecodeInbound(frame []byte) (Inbound, error) {
	var in Inbound
	decoder := json.NewDecoder(bytes.NewReader(frame))
	decoder.UseNumber()
	if err := decoder.Decode(&in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if in.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return in, nil
}
