package userdata

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kiwi-labs/kiwi/internal/branding"
)

// Directory and file name constants for the on-disk layout.
const (
	DirectivesDir  = "directives"
	StagingDir     = ".staging"
	ProjectAIDir   = ".ai"
	LockfileName   = "directives.lock.json"
	UpdateCacheDir = "cache"
)

// Permission constants.
const (
	DirPermNormal  os.FileMode = 0755
	FilePermNormal os.FileMode = 0644
)

// GetHomeRoot returns the per-user home directory (~/.context-kiwi).
// It checks the KIWI_HOME environment variable first.
func GetHomeRoot() (string, error) {
	if v := os.Getenv(branding.EnvVar("HOME")); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, branding.HomeDir()), nil
}

// GetDirectivesRoot returns the user-tier directive directory.
// It checks the KIWI_DIRECTIVES environment variable first,
// then falls back to ~/.context-kiwi/directives.
func GetDirectivesRoot() (string, error) {
	if v := os.Getenv(branding.EnvVar("DIRECTIVES")); v != "" {
		return v, nil
	}
	root, err := GetHomeRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, DirectivesDir), nil
}

// GetStagingDir returns the directory where sync stages fetched content
// before committing it. It sits under the home root so the final rename
// stays on one filesystem with the user tier.
func GetStagingDir() (string, error) {
	root, err := GetHomeRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, StagingDir), nil
}

// GetCacheDir returns the directory holding the update-check cache.
func GetCacheDir() (string, error) {
	root, err := GetHomeRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, UpdateCacheDir), nil
}

// ProjectDirectivesDir returns the project-tier directive directory
// (<project>/.ai/directives).
func ProjectDirectivesDir(project string) string {
	return filepath.Join(project, ProjectAIDir, DirectivesDir)
}

// ProjectStagingDir returns the staging directory used when syncing into a
// project tier (<project>/.ai/.staging).
func ProjectStagingDir(project string) string {
	return filepath.Join(project, ProjectAIDir, StagingDir)
}

// GetLockfilePath returns the lockfile location: inside the project's .ai
// directory when a project is set, otherwise in the home root.
func GetLockfilePath(project string) (string, error) {
	if project != "" {
		return filepath.Join(project, ProjectAIDir, LockfileName), nil
	}
	root, err := GetHomeRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, LockfileName), nil
}
