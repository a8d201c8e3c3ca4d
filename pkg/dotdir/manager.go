// Package dotdir resolves the .voicenotes/ directory holding a device's
// config, database and recorded audio.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirName = ".voicenotes"

	// AudioDir holds the fs blob store when blob.root is unset.
	AudioDir = "audio"

	// DatabaseFile is the SQLite database used when no path is configured.
	DatabaseFile = "voicenotes.db"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path to a .voicenotes/ directory, creating it
// when missing. Order of precedence:
//  1. Provided override
//  2. Local ./.voicenotes/ dir
//  3. Home ~/.voicenotes/ dir
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating voicenotes directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// AudioRoot returns the default directory for stored audio under the
// resolved target, creating it when missing.
func (m *Manager) AudioRoot(overrideDir string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(target, AudioDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating audio directory %s: %w", dir, err)
	}
	return dir, nil
}

// DatabasePath returns the default SQLite path under the resolved target.
func (m *Manager) DatabasePath(overrideDir string) (string, error) {
	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(target, DatabaseFile), nil
}

func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
