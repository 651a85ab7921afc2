package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type options struct {
	configFile string
	addr       string
	logLevel   string
	store      string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "focusflow-sync",
		Short:         "Real-time workspace sync server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "Path to focusflow.yml config file")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address, e.g. :5000")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.store, "store", "", "Storage backend (sqlite or redis)")

	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of focusflow-sync",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("focusflow-sync %s\n", version)
			fmt.Printf("  Commit:    %s\n", commit)
			fmt.Printf("  Built:     %s\n", buildDate)
			fmt.Printf("  Arch:      %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
