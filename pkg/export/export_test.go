package export_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/plotbridge/pkg/domain"
	"github.com/aretw0/plotbridge/pkg/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"png data url", "data:image/png;base64,aGVsbG8=", "hello"},
		{"svg data url", "data:image/svg+xml;base64,PHN2Zy8+", "<svg/>"},
		{"pdf data url", "data:application/pdf;base64,aGVsbG8=", "hello"},
		{"bare base64", "aGVsbG8=", "hello"},
		{"unpadded", "aGVsbG8", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := export.Decode(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, payload := range []string{"", "data:image/png;base64,", "data:text/plain;base64,aGVsbG8=", "***"} {
		_, err := export.Decode(payload)
		assert.True(t, errors.Is(err, domain.ErrInvalidDataURL), payload)
	}
}

func TestResolve(t *testing.T) {
	svg := "data:image/svg+xml;base64,PHN2Zy8+"
	png := "data:image/png;base64,AA=="

	assert.Equal(t, export.SVG, export.Resolve(svg, export.SVG))
	assert.Equal(t, export.PNG, export.Resolve(png, export.SVG))
	assert.Equal(t, export.PNG, export.Resolve(png, export.PNG))
	assert.Equal(t, export.SVG, export.Resolve(svg, export.PNG))
}

func TestParseFormat(t *testing.T) {
	f, err := export.ParseFormat("PNG")
	require.NoError(t, err)
	assert.Equal(t, export.PNG, f)

	f, err = export.ParseFormat(" svg ")
	require.NoError(t, err)
	assert.Equal(t, export.SVG, f)

	_, err = export.ParseFormat("gif")
	assert.Error(t, err)
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/work", "plot.svg"), export.DefaultPath("/work", export.SVG))

	home, err := os.UserHomeDir()
	if err == nil {
		assert.Equal(t, filepath.Join(home, "plot.png"), export.DefaultPath("", export.PNG))
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "Plot saved as PNG", export.SavedMessage(export.PNG))
	assert.Equal(t, "Failed to save plot: disk full", export.FailedMessage(errors.New("disk full")))
}
