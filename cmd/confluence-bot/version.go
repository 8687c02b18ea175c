package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

const (
	ProjectName = "Confluence Bot"
	ProjectRepo = "github.com/ducminhle1904/confluence-bot"
)

// Build information, set via -ldflags
var (
	Version     = "0.1.0"
	BuildDate   = "unknown"
	BuildCommit = "dev"
)

// VersionInfo contains version and build information
type VersionInfo struct {
	ProjectName  string `json:"project_name"`
	Version      string `json:"version"`
	BuildDate    string `json:"build_date"`
	BuildCommit  string `json:"build_commit"`
	GoVersion    string `json:"go_version"`
	Architecture string `json:"architecture"`
	Repository   string `json:"repository"`
}

// GetVersionInfo returns complete version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		ProjectName:  ProjectName,
		Version:      Version,
		BuildDate:    BuildDate,
		BuildCommit:  BuildCommit,
		GoVersion:    runtime.Version(),
		Architecture: runtime.GOOS + "/" + runtime.GOARCH,
		Repository:   ProjectRepo,
	}
}

// GetFullVersion returns a full version string with build info
func GetFullVersion() string {
	info := GetVersionInfo()
	return fmt.Sprintf("%s-%s (%s)", info.Version, info.BuildCommit, info.BuildDate)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := GetVersionInfo()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s v%s\n", info.ProjectName, info.Version)
			fmt.Fprintf(out, "Build: %s (%s)\n", info.BuildCommit, info.BuildDate)
			fmt.Fprintf(out, "Go: %s (%s)\n", info.GoVersion, info.Architecture)
		},
	}
}
