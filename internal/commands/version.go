package commands

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

const defaultVersion = "dev"

// Set at build time via -ldflags.
var (
	Version        = defaultVersion
	CommitHash     = ""
	BuildTimestamp = ""
)

type versionOutput struct {
	Version        string `json:"version"`
	CommitHash     string `json:"commitHash,omitempty"`
	BuildTimestamp string `json:"buildTimestamp,omitempty"`
	GoVersion      string `json:"goVersion"`
	Platform       string `json:"platform"`
}

func newVersionCommand(log logr.Logger) (*cobra.Command, error) {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Prints version information",
		Args:  cobra.NoArgs,
		RunE:  getVersion(log),
	}

	return versionCmd, nil
}

func getVersion(log logr.Logger) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log = log.WithName("version")

		out, err := json.MarshalIndent(versionOutput{
			Version:        Version,
			CommitHash:     CommitHash,
			BuildTimestamp: BuildTimestamp,
			GoVersion:      runtime.Version(),
			Platform:       runtime.GOOS + "/" + runtime.GOARCH,
		}, "", "  ")
		if err != nil {
			log.Error(err, "Could not serialize version information")
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}
}
