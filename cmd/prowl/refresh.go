package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hayashi/prowl/internal/config"
	"github.com/hayashi/prowl/internal/database"
	"github.com/hayashi/prowl/internal/log"
	"github.com/hayashi/prowl/internal/proxypool"
	"github.com/hayashi/prowl/internal/searchapi"
	"github.com/hayashi/prowl/internal/source"
)

// NewRefreshCmd creates the refresh command.
func NewRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch and verify fresh proxies from the candidate source",
		Long: `Refresh downloads candidate proxy addresses from the configured source
URL, verifies each one by relaying a real request through it, and stores
the survivors in the proxy health database for later crawls.

Verification stops early once the target number of working proxies is
found.

Examples:
  # Refresh from a provider URL
  prowl refresh --source https://provider.example.com/proxies.txt

  # Aim for 10 verified proxies out of up to 50 candidates
  prowl refresh -s https://provider.example.com/proxies.txt --target 10 --count 50

  # Use the source URL from the .prowl config file
  prowl refresh`,
		RunE: runRefreshCmd,
	}

	cmd.Flags().StringP("source", "s", "",
		"Candidate source URL (one address per line)")
	cmd.Flags().Int("target", config.DefaultRefreshTarget,
		"Number of verified proxies to aim for")
	cmd.Flags().Int("count", config.DefaultFetchCount,
		"Number of candidates to download")
	cmd.Flags().Duration("verify-timeout", config.DefaultVerifyTimeout,
		"Timeout for each candidate probe")
	cmd.Flags().String("base-url", "",
		"Override the URL probed through each candidate")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .prowl in current, XDG config, or home directory)")

	return cmd
}

// runRefreshCmd executes the refresh command.
func runRefreshCmd(cmd *cobra.Command, _ []string) error {
	verbose := getVerboseFlag(cmd)
	logger := log.NewLogger(os.Stderr, verbose)
	slog.SetDefault(logger)

	sourceURL, err := cmd.Flags().GetString("source")
	if err != nil {
		return err
	}
	target, err := cmd.Flags().GetInt("target")
	if err != nil {
		return err
	}
	count, err := cmd.Flags().GetInt("count")
	if err != nil {
		return err
	}
	verifyTimeout, err := cmd.Flags().GetDuration("verify-timeout")
	if err != nil {
		return err
	}
	baseURL, err := cmd.Flags().GetString("base-url")
	if err != nil {
		return err
	}
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	// The source URL may come from the config file instead of the flag.
	if sourceURL == "" {
		if path := config.FindConfigFile(configPath); path != "" {
			cf, err := config.LoadConfigFile(path)
			if err != nil {
				return fmt.Errorf("failed to load config file %s: %w", path, err)
			}
			sourceURL = cf.Source.URL
			if cf.Source.RefreshTarget > 0 && !cmd.Flags().Changed("target") {
				target = cf.Source.RefreshTarget
			}
			if cf.Source.FetchCount > 0 && !cmd.Flags().Changed("count") {
				count = cf.Source.FetchCount
			}
		}
	}
	if sourceURL == "" {
		return errors.New("no source URL: provide --source or set source.url in the config file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	db, err := database.Open(config.XDGDataDir(), databaseOptions(logger))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if baseURL == "" {
		baseURL = searchapi.DefaultBaseURL
	}

	// The refresher feeds a throwaway pool; persistence is what matters
	// here, the next crawl loads the survivors from the database.
	refresher := source.NewRefresher(
		source.NewHTTPSource(sourceURL),
		source.NewVerifier(
			source.WithTestURL(baseURL+"/robots.txt"),
			source.WithVerifyTimeout(verifyTimeout),
			source.WithVerifyLogger(logger),
		),
		proxypool.New(nil, proxypool.WithLogger(logger)),
		source.WithRefreshTarget(target),
		source.WithFetchCount(count),
		source.WithStore(db),
		source.WithRefreshLogger(logger),
	)

	added, err := refresher.Refill(ctx)
	if err != nil {
		return err
	}
	if added == 0 {
		return errors.New("no working proxies found")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Verified and stored %d %s\n", added, pluralProxy(added))
	return nil
}

// pluralProxy returns "proxy" or "proxies" for the count.
func pluralProxy(n int) string {
	if n == 1 {
		return "proxy"
	}
	return "proxies"
}
