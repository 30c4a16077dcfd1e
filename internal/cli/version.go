package cli

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sufield/fan/internal/buildinfo"
)

// versionInfo combines stamped build information with the runtime the
// binary was compiled for.
type versionInfo struct {
	Version   string `json:"version"`
	Stamped   bool   `json:"stamped"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	BuildUser string `json:"build_user"`
	BuildHost string `json:"build_host"`
	GoVersion string `json:"go_version"`
	GOOS      string `json:"os"`
	GOARCH    string `json:"arch"`
}

func collectVersionInfo() versionInfo {
	build := buildinfo.Get()
	return versionInfo{
		Version:   build.Version,
		Stamped:   build.Stamped(),
		Commit:    build.CommitHash,
		BuildDate: build.BuildTime,
		BuildUser: build.BuildUser,
		BuildHost: build.BuildHost,
		GoVersion: runtime.Version(),
		GOOS:      runtime.GOOS,
		GOARCH:    runtime.GOARCH,
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  "Display detailed version and build information for the fan CLI.",
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().String("format", "text", "Output format: text or json")
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	info := collectVersionInfo()
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(info); err != nil {
			return fmt.Errorf("%w: failed to encode version info as JSON: %v", ErrInternal, err)
		}
	case "text":
		version := info.Version
		if !info.Stamped {
			version += " (unstamped build)"
		}
		rows := []struct{ label, value string }{
			{"Version", version},
			{"Commit", info.Commit},
			{"Build Date", info.BuildDate},
			{"Build User", info.BuildUser},
			{"Build Host", info.BuildHost},
			{"Go Version", info.GoVersion},
			{"OS/Arch", info.GOOS + "/" + info.GOARCH},
		}
		for _, row := range rows {
			fmt.Fprintf(out, "%s: %s\n", row.label, row.value)
		}
	default:
		return fmt.Errorf("%w: unsupported format %q, use 'text' or 'json'", ErrUsage, format)
	}

	return nil
}
