package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// WorkspaceState implements ports.WorkspaceState as a flat JSON object on disk.
// The whole file is rewritten on every Set.
type WorkspaceState struct {
	path string
	mu   sync.Mutex
}

// NewWorkspaceState stores state at path. An empty path defaults to
// ".plotbridge/workspace.json".
func NewWorkspaceState(path string) *WorkspaceState {
	if path == "" {
		path = filepath.Join(".plotbridge", "workspace.json")
	}
	return &WorkspaceState{path: path}
}

// Path returns the backing file.
func (w *WorkspaceState) Path() string {
	return w.path
}

// Get returns the value for key and whether it was present.
func (w *WorkspaceState) Get(key string) (string, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	values, err := w.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set stores value under key. An empty value removes the key.
func (w *WorkspaceState) Set(key, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	values, err := w.read()
	if err != nil {
		return err
	}
	if value == "" {
		delete(values, key)
	} else {
		values[key] = value
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workspace state: %w", err)
	}
	return writeAtomic(w.path, data)
}

func (w *WorkspaceState) read() (map[string]string, error) {
	values := map[string]string{}
	data, err := os.ReadFile(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return values, nil
		}
		return nil, fmt.Errorf("failed to read workspace state: %w", err)
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse workspace state %s: %w", w.path, err)
	}
	return values, nil
}
