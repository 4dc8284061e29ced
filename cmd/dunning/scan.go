// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/licenseops/dunning/internal/models"
	"github.com/licenseops/dunning/internal/services/ledger"
)

// scanOutput is printed as JSON so a cron job or timer can pipe it onward.
type scanOutput struct {
	*ledger.ScanResult
	Marked int `json:"marked"`
}

func RunScanCommand() *cobra.Command {
	var (
		includeGrace bool
		limit        int
		mark         bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Find overdue licenses once and print them as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApplication(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					log.Error().Err(err).Msg("Failed to close resources")
				}
			}()

			ctx := cmd.Context()
			result, err := app.deps.Scanner.Scan(ctx, ledger.ScanOptions{
				IncludeGrace: includeGrace,
				Limit:        limit,
			})
			if err != nil {
				return err
			}
			if app.deps.Metrics != nil {
				app.deps.Metrics.Dispatch.ObserveScan(result.Count)
			}

			out := scanOutput{ScanResult: result}
			if mark {
				licenses := make([]*models.License, 0, len(result.Items))
				for _, item := range result.Items {
					licenses = append(licenses, item.License)
				}
				out.Marked, err = app.deps.Ledger.MarkOverdue(ctx, licenses)
				if err != nil {
					return err
				}
				log.Info().Int("marked", out.Marked).Msg("Licenses marked overdue")
			}

			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode scan result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeGrace, "grace", false, "Include licenses still inside their grace period")
	cmd.Flags().IntVar(&limit, "limit", ledger.DefaultScanLimit, "Maximum number of licenses to return")
	cmd.Flags().BoolVar(&mark, "mark", false, "Set status overdue on pending licenses past their grace period")

	return cmd
}
