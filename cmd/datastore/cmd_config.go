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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/datastore/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration and manage the database password",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration (merged from defaults, file and environment) as YAML.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetPasswordCmd = &cobra.Command{
	Use:   "set-password",
	Short: "Save the database password to the system keyring",
	Long: `Save the database password to the system keyring securely.

The password is used when neither DATABASE_PASSWORD nor DATABASE_PASSWORD_FILE
provides one and database.dsn.use_keyring (DATABASE_USE_KEYRING) is enabled.`,
	Args: cobra.NoArgs,
	RunE: runConfigSetPassword,
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetPasswordCmd)
}

// shownConfig is the YAML view of the configuration. The password is
// replaced by a mask.
type shownConfig struct {
	DataDir  string          `yaml:"data_dir"`
	Database config.Database `yaml:"database"`
	Password string          `yaml:"password"`
	Logging  config.Logging  `yaml:"logging"`
	Tracing  config.Tracing  `yaml:"tracing"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	shown := shownConfig{
		DataDir:  cfg.DataDir,
		Database: cfg.Database,
		Password: "(not set)",
		Logging:  cfg.Logging,
		Tracing:  cfg.Tracing,
	}
	if cfg.Database.DSN.Password != "" {
		shown.Password = maskSecret(cfg.Database.DSN.Password)
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(shown); err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	return enc.Close()
}

func runConfigSetPassword(cmd *cobra.Command, args []string) error {
	// Read secret from stdin (without echo)
	fmt.Fprint(cmd.OutOrStdout(), "Enter database password (input hidden): ")
	secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}

	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if err := config.SavePasswordToKeyring(secret); err != nil {
		return fmt.Errorf("error saving to keyring: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Saved database password to system keyring")
	return nil
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
