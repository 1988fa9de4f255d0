package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: $GWIZ_CONFIG, ~/.config/gwiz/config.yaml,
// /etc/gwiz/config.yaml, ./gwiz.yaml.
func DiscoverConfigPath() (string, error) {
	if path := os.Getenv("GWIZ_CONFIG"); path != "" {
		if fileExists(path) {
			return path, nil
		}
		return "", fmt.Errorf("$GWIZ_CONFIG points to missing file %s", path)
	}

	candidates := []string{}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "gwiz", "config.yaml"))
	}
	candidates = append(candidates, "/etc/gwiz/config.yaml", "./gwiz.yaml")

	for _, path := range candidates {
		if fileExists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: $GWIZ_CONFIG, ~/.config/gwiz/config.yaml, /etc/gwiz/config.yaml, ./gwiz.yaml)")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
