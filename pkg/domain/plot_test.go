package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlotID_NumericAndStringForms(t *testing.T) {
	var plots []domain.Plot
	err := json.Unmarshal([]byte(`[{"id":1,"data":"a"},{"id":"abc","data":"b"},{"id":null,"data":"c"}]`), &plots)
	require.NoError(t, err)

	assert.Equal(t, domain.PlotID("1"), plots[0].ID)
	assert.Equal(t, domain.PlotID("abc"), plots[1].ID)
	assert.Equal(t, domain.PlotID(""), plots[2].ID)

	out, err := json.Marshal(domain.DeletePlot(plots[0].ID))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"delete_plot","plot_id":1}`, string(out))

	out, err = json.Marshal(domain.DeletePlot(plots[1].ID))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"delete_plot","plot_id":"abc"}`, string(out))
}

func TestPlotID_NonCanonicalIntegersStayStrings(t *testing.T) {
	var plots domain.PlotList
	require.NoError(t, json.Unmarshal([]byte(`[{"id":"007"},{"id":"+5"},{"id":"00"},{"id":"-3"},{"id":-0}]`), &plots))

	out, err := json.Marshal(domain.DeletePlot(plots[0].ID))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"delete_plot","plot_id":"007"}`, string(out))

	id := plots[1].ID
	out, err = json.Marshal(domain.Resize(10, 10, &id))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"resize","width":10,"height":10,"plot_id":"+5"}`, string(out))

	out, err = json.Marshal(domain.PlotStateMessage(plots, 0))
	require.NoError(t, err)
	var decoded struct {
		Plots []struct {
			ID json.RawMessage `json:"id"`
		} `json:"plots"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	ids := make([]string, 0, len(decoded.Plots))
	for _, p := range decoded.Plots {
		ids = append(ids, string(p.ID))
	}
	assert.Equal(t, []string{`"007"`, `"+5"`, `"00"`, `-3`, `"-0"`}, ids)
}

func TestOutbound_ResizeKeepsNullPlotID(t *testing.T) {
	out, err := json.Marshal(domain.Resize(640, 480, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"resize","width":640,"height":480,"plot_id":null}`, string(out))

	id := domain.PlotID("3")
	out, err = json.Marshal(domain.Resize(640, 480, &id))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"resize","width":640,"height":480,"plot_id":3}`, string(out))

	out, err = json.Marshal(domain.GetPlots())
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"get_plots"}`, string(out))
}

func TestTimestamp_Decoding(t *testing.T) {
	var p domain.Plot
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"timestamp":1700000000000}`), &p))
	assert.Equal(t, int64(1700000000000), p.CreatedAt.UnixMilli())

	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"timestamp":1700000000}`), &p))
	assert.Equal(t, int64(1700000000), p.CreatedAt.Unix())

	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"timestamp":"2024-01-02T03:04:05Z"}`), &p))
	assert.Equal(t, 2024, p.CreatedAt.Year())

	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"timestamp":"12:01:02"}`), &p))
	assert.True(t, p.CreatedAt.IsZero())
}

func TestIDGenerator_StrictlyIncreasing(t *testing.T) {
	fixed := time.UnixMilli(5000)
	gen := &domain.IDGenerator{Now: func() time.Time { return fixed }}

	assert.Equal(t, domain.PlotID("5000"), gen.Next())
	assert.Equal(t, domain.PlotID("5001"), gen.Next())
	assert.Equal(t, domain.PlotID("5002"), gen.Next())
}

func TestDecodeInbound(t *testing.T) {
	in, err := domain.DecodeInbound([]byte(`{"type":"new_plot","data":"data:image/png;base64,AA==","metadata":{"id":1733912345678}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.MsgNewPlot, in.Type)

	meta, err := in.PlotMetadata()
	require.NoError(t, err)
	assert.Equal(t, domain.PlotID("1733912345678"), meta.ID)

	_, err = domain.DecodeInbound([]byte(`{"type":`))
	assert.True(t, errors.Is(err, domain.ErrMalformedFrame))

	_, err = domain.DecodeInbound([]byte(`{"data":"x"}`))
	assert.True(t, errors.Is(err, domain.ErrMalformedFrame))
}

func TestPlotList_Retained(t *testing.T) {
	list := domain.PlotList{
		{ID: "1"},
		{ID: "2", IsFavorite: true},
		{ID: "3", Note: "keep"},
	}
	retained := list.Retained()
	assert.Len(t, retained, 2)
	assert.True(t, retained["2"].IsFavorite)
	assert.Equal(t, "keep", retained["3"].Note)
}

func TestSurfaceMessages_Encoding(t *testing.T) {
	out, err := json.Marshal(domain.ProxyStatusMessage(false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"ws_proxy_status","connected":false}`, string(out))

	out, err = json.Marshal(domain.PlotStateMessage(nil, -1))
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"plot_state","plots":[],"currentIndex":-1}`, string(out))
}
