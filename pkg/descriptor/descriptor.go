package descriptor

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/plotbridge/pkg/domain"
)

// Descriptor is the record a backend writes when it starts listening.
type Descriptor struct {
	Port int `json:"port"`
}

// Read parses the descriptor at path.
// Missing files return an error satisfying errors.Is(err, fs.ErrNotExist).
func Read(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read descriptor: %w", err)
	}
	return Parse(data)
}

// Parse decodes descriptor content. Partial writes and non-positive ports are
// reported as domain.ErrInvalidDescriptor.
func Parse(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", domain.ErrInvalidDescriptor, err)
	}
	if !domain.ValidPort(d.Port) {
		return Descriptor{}, fmt.Errorf("%w: port %d", domain.ErrInvalidDescriptor, d.Port)
	}
	return d, nil
}

// Write stores d at path, replacing any previous content.
func Write(path string, d Descriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
