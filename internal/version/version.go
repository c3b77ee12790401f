// Package version provides build-time version information for the application.
package version

// Set with -ldflags "-X examprep/internal/version.Version=..." at build time
var (
	Version   = "dev"
	Commit    = "dev"
	BuildTime = "unknown"
)

// Info is the build metadata served by the version endpoint
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

// Get returns the build metadata for service
func Get(service string) Info {
	return Info{
		Service:   service,
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
	}
}
