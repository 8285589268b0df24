package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformDarwin  = "darwin"
	platformWindows = "windows"
)

// Application directory name used across all platforms.
const appName = "RAGVideo"

// DefaultConfigDir returns the directory for the config file and for
// state that has no explicit location. RAGVIDEO_CONFIG_DIR wins
// everywhere; otherwise the platform convention applies: %APPDATA% on
// Windows, ~/Library/Application Support on macOS, XDG on anything else.
func DefaultConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformWindows:
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
		return filepath.Join(home, appName)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultConfigPath returns the full path to the default config file.
// This is used as the fallback when --config is not specified.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, defaultConfigFileName)
}

// DefaultLibraryDir returns the directory holding per-task note
// directories when [library].dir is not configured.
func DefaultLibraryDir() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, defaultLibrarySubdir)
}
