package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/revmigrate/internal/render"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	Go        string `json:"go"`
	Platform  string `json:"platform"`
}

// buildVersion fills in what ldflags left unset from the module build info,
// so `go install` builds still report a version and revision.
func buildVersion() versionInfo {
	info := versionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == "none":
			info.Commit = s.Value
		case s.Key == "vcs.time" && info.BuildDate == "unknown":
			info.BuildDate = s.Value
		}
	}
	return info
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print revmigrate version information",
	Annotations: map[string]string{"skipValidate": "true"},
	Run: func(cmd *cobra.Command, args []string) {
		w := getWriter(cmd)
		info := buildVersion()

		bold := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
		dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		msg := fmt.Sprintf("revmigrate %s %s",
			render.StyledText(info.Version, bold),
			render.StyledText(fmt.Sprintf("(commit: %s, built: %s, %s %s)", info.Commit, info.BuildDate, info.Go, info.Platform), dim),
		)
		w.Success(info, msg)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
