// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func RunDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database operations",
	}

	cmd.AddCommand(runDBMigrateCommand())
	return cmd
}

func runDBMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logs, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer logs.Close()

			// opening the database applies every pending migration
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			if err := db.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s)\n", db.Dialect())
			return nil
		},
	}
}
