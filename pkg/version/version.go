// Package version provides build metadata for the application.
package version

import (
	"fmt"
	"time"
)

// These variables are injected at build time using -ldflags.
var (
	// Version holds the current version of sitemedic.
	Version = "dev"
	// Commit holds the current version commit of sitemedic.
	Commit = "none"
	// BuildDate holds the build date of sitemedic.
	BuildDate = "unknown"
	// StartDate holds the process start date.
	StartDate = time.Now()
)

// Struct returns version information in a structured format.
type Struct struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
}

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("SiteMedic %s (commit: %s, date: %s)", Version, Commit, BuildDate)
}

// Get returns the structured version metadata.
func Get() Struct {
	return Struct{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	}
}
