package version

import "fmt"

// Set at build time with -ldflags "-X github.com/gilkh/livret/internal/version.Version=..."
var (
	Version   = "0.1.0"
	BuildTime = "development"
	GitCommit = "unknown"
)

const Name = "livret"

func String() string {
	return fmt.Sprintf("%s v%s (%s)", Name, Version, GitCommit)
}

func Get() map[string]string {
	return map[string]string{
		"name":      Name,
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
	}
}
