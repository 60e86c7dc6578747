// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/datastore/internal/log"
	"github.com/teradata-labs/datastore/internal/version"
	"github.com/teradata-labs/datastore/pkg/backend"
	"github.com/teradata-labs/datastore/pkg/config"
	"github.com/teradata-labs/datastore/pkg/datastore"
	"github.com/teradata-labs/datastore/pkg/observability"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "datastore",
	Short: "Datastore - bounded database connection handler",
	Long: `datastore opens the configured database through a connection handler that
never holds more than DATASTORE_MAX_CONNECTIONS connections at once, and runs
statements against it.`,
	Version:           version.Get(),
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	_ = log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $DATASTORE_DATA_DIR/datastore.yaml)")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides DATASTORE_LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json); overrides DATASTORE_LOG_FORMAT")
	rootCmd.PersistentFlags().String("tracing", "", "Tracing mode (none, memory, log); overrides DATASTORE_TRACING")

	rootCmd.AddCommand(pingCmd, execCmd, queryCmd, valueCmd, configCmd)
}

// initConfig loads the configuration and configures the global logger.
func initConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Logging.Format = format
	}
	if mode, _ := cmd.Flags().GetString("tracing"); mode != "" {
		cfg.Tracing.Mode = mode
	}
	return log.Configure(cfg.Logging.Level, cfg.Logging.Format)
}

// openHandler creates the connection handler and tracer for the loaded
// configuration. The handler flushes the tracer on Shutdown.
func openHandler(ctx context.Context) (*datastore.Handler, error) {
	tracer, err := observability.NewTracer(cfg.Tracing.Mode, cfg.Tracing.MaxSpans,
		log.With(zap.String("component", "tracer")))
	if err != nil {
		return nil, err
	}
	return backend.NewHandler(ctx, cfg.Database, tracer, log.Logger())
}
