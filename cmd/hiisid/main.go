// Command hiisid serves the multi-tenant embedded-SQL HTTP front end:
// POST /v2/pipeline, the namespace admin routes, and a /metrics admin
// plane. Flags and env vars match the original CLI surface
// (--db-path/-d, SQLD_DB_PATH; --http-listen-addr, SQLD_HTTP_LISTEN_ADDR),
// grounded on hiisi-server/src/main.rs's Cli struct, scaffolded with
// cobra the way oriys-nova/cmd/nova and cmd/zenith do.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oriys/hiisid/internal/config"
)

func main() {
	var (
		dbPath         string
		httpListenAddr string
		configFile     string
		logLevel       string
		logFormat      string
	)

	cmd := &cobra.Command{
		Use:   "hiisid",
		Short: "hiisid - multi-tenant embedded SQL over HTTP",
		Long:  "A single-threaded HTTP front end that serves pipelined SQL requests against per-namespace SQLite databases.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			} else {
				cfg = config.DefaultConfig()
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("db-path") {
				cfg.DBPath = dbPath
			}
			if cmd.Flags().Changed("http-listen-addr") {
				cfg.HTTPListenAddr = httpListenAddr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Logging.Format = logFormat
			}

			if seed := os.Getenv("SEED"); seed != "" {
				return runSimulation(cfg, seed)
			}
			return runServer(cfg)
		},
	}

	cmd.Flags().StringVarP(&dbPath, "db-path", "d", "data", "Directory holding one subdirectory per namespace (env SQLD_DB_PATH)")
	cmd.Flags().StringVar(&httpListenAddr, "http-listen-addr", "127.0.0.1:8080", "HTTP listen address (env SQLD_HTTP_LISTEN_ADDR)")
	cmd.Flags().StringVar(&configFile, "config", "", "Path to a YAML config file (optional, flags and env vars override)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
