// Package main provides the somnia CLI entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oneirolab/somnia"
	"github.com/oneirolab/somnia/internal/aggregate"
	"github.com/oneirolab/somnia/internal/config"
	"github.com/oneirolab/somnia/internal/fetch"
	"github.com/oneirolab/somnia/internal/logger"
	"github.com/oneirolab/somnia/internal/metrics"
	"github.com/oneirolab/somnia/internal/registry"
	"github.com/oneirolab/somnia/internal/transport/httpapi"
	"github.com/oneirolab/somnia/internal/version"
)

var (
	flagCacheDir string
	flagRegistry string
	flagVerbose  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "somnia",
		Short: "Access curated dream-report corpora",
		Long: `somnia resolves named, versioned dream-report corpora from a declarative
registry, downloads and content-verifies the backing files, and materializes
them into normalized reports and authors tables.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", "", "local content-cache directory")
	rootCmd.PersistentFlags().StringVar(&flagRegistry, "registry", "", "catalog file (default: embedded)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(
		listCmd(),
		versionsCmd(),
		infoCmd(),
		fetchCmd(),
		lintCmd(),
		aggregateCmd(),
		serveCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if !flagVerbose {
		return zap.NewNop(), nil
	}
	return logger.New(config.GetEnv(), "debug")
}

func newClient() (*somnia.Client, error) {
	log, err := newLogger()
	if err != nil {
		return nil, err
	}
	opts := []somnia.Option{somnia.WithLogger(log)}
	if flagCacheDir != "" {
		opts = append(opts, somnia.WithCacheDir(flagCacheDir))
	}
	if flagRegistry != "" {
		opts = append(opts, somnia.WithRegistryPath(flagRegistry))
	}
	return somnia.Open(opts...)
}

func listCmd() *cobra.Command {
	var collections bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List corpora (or collections)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			var names []string
			if collections {
				names, err = client.ListCollections()
			} else {
				names, err = client.ListCorpora()
			}
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&collections, "collections", false, "list collections instead of corpora")
	return cmd
}

func versionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <name>",
		Short: "List available versions of a corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			versions, err := client.ListVersions(args[0])
			if err != nil {
				return err
			}
			for _, v := range versions {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show descriptive corpus metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			info, err := client.Info(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), info)
			return nil
		},
	}
}

func fetchCmd() *cobra.Command {
	var ver string
	cmd := &cobra.Command{
		Use:   "fetch <name>",
		Short: "Download and verify a corpus, print counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			c, err := client.LoadVersion(cmd.Context(), args[0], ver)
			if err != nil {
				return err
			}
			nReports, err := c.NReports()
			if err != nil {
				return err
			}
			nAuthors, err := c.NAuthors()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d reports, %d authors\n%s\n",
				c.Name(), nReports, nAuthors, c.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&ver, "version", "", "corpus version (default: latest)")
	return cmd
}

func lintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <catalog.yaml>",
		Short: "Run the catalog release checks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			problems := registry.Lint(data)
			if len(problems) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "catalog is clean")
				return nil
			}
			for _, p := range problems {
				fmt.Fprintln(cmd.ErrOrStderr(), p)
			}
			return fmt.Errorf("%d problem(s) found", len(problems))
		},
	}
}

func aggregateCmd() *cobra.Command {
	var out, format string
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Flatten all corpora into one distribution file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := newLogger()
			if err != nil {
				return err
			}
			cacheDir := flagCacheDir
			if cacheDir == "" {
				cfg, err := config.Default()
				if err != nil {
					return err
				}
				cacheDir = cfg.Cache.Root
			}
			store := registry.NewStore(flagRegistry)
			fetcher := fetch.New(cacheDir, nil, log)
			builder := aggregate.NewBuilder(store, fetcher, log)

			result, err := builder.Build(cmd.Context())
			if err != nil {
				return err
			}
			switch format {
			case "csv":
				err = aggregate.WriteCSV(result, out)
			case "parquet":
				err = aggregate.WriteParquet(result, out)
			default:
				return fmt.Errorf("unknown format %q (want csv or parquet)", format)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d reports to %s\n", result.Len(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output file path")
	cmd.Flags().StringVar(&format, "format", "csv", "output format: csv or parquet")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func serveCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(env)
		},
	}
	cmd.Flags().StringVar(&env, "env", config.GetEnv(), "environment config to load (local, dev, prod)")
	return cmd
}

func runServe(env string) error {
	cfg, err := config.Load(env)
	if err != nil {
		cfg, err = config.Default()
		if err != nil {
			return err
		}
	}
	if flagCacheDir != "" {
		cfg.Cache.Root = flagCacheDir
	}
	if flagRegistry != "" {
		cfg.Registry.Path = flagRegistry
	}

	log, err := logger.New(env, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	metrics.RegisterFetchMetrics()

	store := registry.NewStore(cfg.Registry.Path)
	if _, err := store.Load(); err != nil {
		return err
	}
	fetcher := fetch.New(cfg.Cache.Root, nil, log)
	server := httpapi.NewServer(store, fetcher, log)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	log.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
	}

	log.Info("Server stopped gracefully")
	return nil
}
