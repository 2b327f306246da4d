package util

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the bkup configuration directory.
const HomeEnv = "BKUP_HOME"

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// BkupConfigPath returns the bkup configuration directory.
// BKUP_HOME wins over the default ~/.config/bkup.
func BkupConfigPath() string {
	if v := os.Getenv(HomeEnv); v != "" {
		return v
	}
	return filepath.Join(HomeDir(), ".config", "bkup")
}

// ExpandPath expands a leading ~ and resolves relative paths against baseDir.
// An empty baseDir leaves relative paths relative.
func ExpandPath(p, baseDir string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if p == "~" {
		return HomeDir()
	}
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		return filepath.Join(HomeDir(), p[2:])
	}
	if !filepath.IsAbs(p) && baseDir != "" {
		return filepath.Join(baseDir, p)
	}
	return filepath.Clean(p)
}
