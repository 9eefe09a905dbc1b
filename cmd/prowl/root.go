// Package main provides the entry point for the prowl CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for prowl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prowl",
		Short: "Proxy-rotating search crawler",
		Long: `Prowl crawls a search API through a rotating pool of health-tracked
proxies. Failing proxies cool down or are retired, crawls survive proxy
churn, and results are deduplicated across queries before being written
as JSON or Markdown.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewRefreshCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
