// conf/utils.go various util functions for configuration package
package conf

import (
	"os"
	"path/filepath"
	"runtime"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// current directory first.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return paths
	}

	switch runtime.GOOS {
	case osWindows:
		paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", "sightings"))
	default:
		paths = append(paths, filepath.Join(homeDir, ".config", "sightings"))
	}
	return paths
}
