// Package export decodes plot payloads for saving and picks the saved format.
package export

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aretw0/plotbridge/pkg/domain"
)

// Format is a lower-case export file format.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

// Choices are offered by the format picker, in order.
var Choices = []string{"PNG", "SVG"}

var dataURLPrefix = regexp.MustCompile(`^data:(image|application)/[\w+.-]+;base64,`)

// ParseFormat accepts picker choices and format names in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case PNG, SVG:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Upper is the format as shown to users.
func (f Format) Upper() string {
	return strings.ToUpper(string(f))
}

// IsSVG reports whether the payload is an SVG data URL.
func IsSVG(payload string) bool {
	return strings.HasPrefix(payload, "data:image/svg+xml")
}

// Decode strips a base64 data-URL prefix and decodes the rest.
// Payloads without a prefix are decoded as plain base64.
func Decode(payload string) ([]byte, error) {
	raw := dataURLPrefix.ReplaceAllString(payload, "")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidDataURL)
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err == nil {
		return data, nil
	}
	if data, rawErr := base64.RawStdEncoding.DecodeString(raw); rawErr == nil {
		return data, nil
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDataURL, err)
}

// Resolve picks the format a payload is saved in when requested is asked for.
//
// A raster payload asked for as SVG is saved as PNG. An SVG payload asked for
// as PNG stays SVG on the host side, since nothing here rasterizes; surfaces
// that can rasterize send save_data with PNG data instead.
func Resolve(payload string, requested Format) Format {
	svg := IsSVG(payload)
	switch {
	case requested == SVG && !svg:
		return PNG
	case requested == PNG && svg:
		return SVG
	default:
		return requested
	}
}

// DefaultPath is where the save dialog starts: the workspace directory when
// known, else the user's home directory.
func DefaultPath(workspaceDir string, f Format) string {
	name := "plot." + string(f)
	if workspaceDir != "" {
		return filepath.Join(workspaceDir, name)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, name)
	}
	return name
}

// SavedMessage is the notification after a successful save.
func SavedMessage(f Format) string {
	return "Plot saved as " + f.Upper()
}

// FailedMessage is the notification after a failed save.
func FailedMessage(err error) string {
	return "Failed to save plot: " + err.Error()
}
