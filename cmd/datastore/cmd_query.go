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
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"

	"github.com/teradata-labs/datastore/pkg/datastore"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that a connection can be acquired",
	Args:  cobra.NoArgs,
	RunE:  runPing,
}

var execCmd = &cobra.Command{
	Use:   "exec <statement> [args...]",
	Short: "Execute a statement and commit",
	Long: `Execute a statement in its own scope. The scope commits when the statement
succeeds. Remaining arguments are bound as statement parameters.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

var queryCmd = &cobra.Command{
	Use:   "query <statement> [args...]",
	Short: "Run a query and print every row as a JSON array",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

var valueCmd = &cobra.Command{
	Use:   "value <statement> [args...]",
	Short: "Print the first column of the first row",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValue,
}

func init() {
	for _, cmd := range []*cobra.Command{execCmd, queryCmd, valueCmd} {
		cmd.Flags().StringSlice("ident", nil,
			"identifier substituted for a {} placeholder, in order (schema.table is qualified)")
	}
	queryCmd.Flags().Bool("column", false, "print only the first column of every row")
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx := datastore.WithExecutionContext(cmd.Context())
	h, err := openHandler(ctx)
	if err != nil {
		return err
	}
	defer h.Shutdown()

	err = h.GetConnectionContext().Run(ctx, func(ctx context.Context, conn *datastore.Conn) error {
		_, err := conn.QueryRow(ctx, "SELECT 1")
		return err
	})
	if err != nil {
		return err
	}

	stats := h.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "ok: driver=%s max_connections=%d available=%d\n",
		cfg.Database.Driver, stats.MaxConnections, stats.AvailableSlots)
	return nil
}

func runExec(cmd *cobra.Command, args []string) error {
	idents, err := identFlag(cmd)
	if err != nil {
		return err
	}
	h, err := openHandler(cmd.Context())
	if err != nil {
		return err
	}
	defer h.Shutdown()

	if err := h.Execute(cmd.Context(), args[0], statementArgs(args), idents...); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	idents, err := identFlag(cmd)
	if err != nil {
		return err
	}
	columnOnly, _ := cmd.Flags().GetBool("column")

	h, err := openHandler(cmd.Context())
	if err != nil {
		return err
	}
	defer h.Shutdown()

	var out []any
	if columnOnly {
		out, err = h.QueryListOfSingleValues(cmd.Context(), args[0], statementArgs(args), idents...)
	} else {
		var rows []datastore.Row
		rows, err = h.Query(cmd.Context(), args[0], statementArgs(args), idents...)
		for _, r := range rows {
			out = append(out, []any(r))
		}
	}
	if err != nil {
		return err
	}

	for _, v := range out {
		j, err := h.ToJSON(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), j.String())
	}
	return nil
}

func runValue(cmd *cobra.Command, args []string) error {
	idents, err := identFlag(cmd)
	if err != nil {
		return err
	}
	h, err := openHandler(cmd.Context())
	if err != nil {
		return err
	}
	defer h.Shutdown()

	v, err := h.QuerySingleValue(cmd.Context(), args[0], statementArgs(args), idents...)
	if err != nil {
		return err
	}
	j, err := h.ToJSON(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), j.String())
	return nil
}

// statementArgs returns the bind parameters following the statement.
func statementArgs(args []string) []any {
	params := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		params = append(params, a)
	}
	return params
}

// identFlag parses --ident values; "a.b" becomes the qualified identifier a.b.
func identFlag(cmd *cobra.Command) ([]pgx.Identifier, error) {
	raw, _ := cmd.Flags().GetStringSlice("ident")
	return parseIdentifiers(raw)
}

func parseIdentifiers(raw []string) ([]pgx.Identifier, error) {
	idents := make([]pgx.Identifier, 0, len(raw))
	for _, r := range raw {
		parts := strings.Split(r, ".")
		for _, p := range parts {
			if p == "" {
				return nil, fmt.Errorf("invalid identifier %q", r)
			}
		}
		idents = append(idents, pgx.Identifier(parts))
	}
	return idents, nil
}
