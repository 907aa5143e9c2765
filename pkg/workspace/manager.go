package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Manager derives per-app workspace roots under the configured storage path
// and hands out stores bound to them. Roots are always computed from the
// owning user and app IDs, never from client input.
type Manager struct {
	storageRoot string
}

// NewManager returns a manager writing under storageRoot. The root is
// created if absent so the first workspace operation never races mkdir.
func NewManager(storageRoot string) (*Manager, error) {
	abs, err := filepath.Abs(storageRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage path: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, "apps"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage path: %w", err)
	}
	return &Manager{storageRoot: abs}, nil
}

// RootFor returns the workspace root directory for one user's app.
func (m *Manager) RootFor(userID, appID int64) string {
	return filepath.Join(m.storageRoot, "apps",
		strconv.FormatInt(userID, 10), strconv.FormatInt(appID, 10))
}

// Open returns a store bound to the app's workspace, creating the root
// directory on first use.
func (m *Manager) Open(userID, appID int64) (*Store, error) {
	return NewStore(m.RootFor(userID, appID))
}

// Remove deletes the app's entire workspace directory. Used when the app
// itself is deleted; missing directories are not an error.
func (m *Manager) Remove(userID, appID int64) error {
	root := m.RootFor(userID, appID)
	if err := os.RemoveAll(root); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", root, err)
	}
	return nil
}
