// Package workspace allocates per-session scratch directories for
// engine runs and reclaims them when a session is deleted.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var sessionSubdirs = []string{"input_files", "outputs", "logs", "checkpoints"}

type Manager struct {
	root string
}

func NewManager(root string) (*Manager, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, "sessions"), 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{root: root}, nil
}

func (m *Manager) Root() string { return m.root }

// Allocate creates the session directory tree. Calling it again for
// the same session is a no-op and returns the same path.
func (m *Manager) Allocate(sessionID string) (string, error) {
	dir, err := m.SessionDir(sessionID)
	if err != nil {
		return "", err
	}
	for _, sub := range sessionSubdirs {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create session dir %s: %w", sub, err)
		}
	}
	return dir, nil
}

func (m *Manager) SessionDir(sessionID string) (string, error) {
	if err := validateID(sessionID); err != nil {
		return "", err
	}
	return filepath.Join(m.root, "sessions", sessionID), nil
}

func (m *Manager) InputDir(sessionID string) (string, error) {
	dir, err := m.SessionDir(sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "input_files"), nil
}

func (m *Manager) OutputDir(sessionID string) (string, error) {
	dir, err := m.SessionDir(sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "outputs"), nil
}

// Reclaim removes the session tree. Missing directories are not an
// error so deletion stays idempotent.
func (m *Manager) Reclaim(sessionID string) error {
	dir, err := m.SessionDir(sessionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("reclaim workspace: %w", err)
	}
	return nil
}

func validateID(sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.ContainsAny(sessionID, `/\`) || strings.Contains(sessionID, "..") {
		return fmt.Errorf("session id %q is not a valid directory name", sessionID)
	}
	return nil
}
