// Package version tracks build metadata for the application.
package version

import (
	"strings"
	"sync"
)

// Info describes build metadata for the application.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// String renders the metadata on a single line, omitting empty parts.
func (i Info) String() string {
	parts := []string{i.Version}
	if i.Commit != "" {
		parts = append(parts, "commit "+i.Commit)
	}
	if i.BuildTime != "" {
		parts = append(parts, "built "+i.BuildTime)
	}
	return strings.Join(parts, ", ")
}

var (
	info      = Info{Version: "dev"}
	infoMutex sync.RWMutex
)

// Set updates the version metadata reported by the CLI.
func Set(v Info) {
	infoMutex.Lock()
	defer infoMutex.Unlock()

	if v.Version == "" {
		v.Version = "dev"
	}
	info = v
}

// Current returns the currently configured build metadata.
func Current() Info {
	infoMutex.RLock()
	defer infoMutex.RUnlock()
	return info
}
