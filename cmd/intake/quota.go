package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newQuotaCmd(a *app) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect or change per-user quotas",
	}
	cmd.PersistentFlags().StringVar(&userID, "user", "", "user id")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print used and limit for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			ctx := cmd.Context()
			ledger, closeLedger, err := a.cfg.BuildLedger(ctx, a.logger)
			if err != nil {
				return err
			}
			defer closeLedger()

			used, limit, err := ledger.Usage(ctx, userID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "user=%s used=%d limit=%d\n", userID, used, limit)
			return err
		},
	}

	var limit int64
	set := &cobra.Command{
		Use:   "set",
		Short: "Override the quota limit of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			ctx := cmd.Context()
			ledger, closeLedger, err := a.cfg.BuildLedger(ctx, a.logger)
			if err != nil {
				return err
			}
			defer closeLedger()

			if err := ledger.SetLimit(ctx, userID, limit); err != nil {
				return err
			}
			a.logger.Info("quota limit updated", "user_id", userID, "limit", limit)
			return nil
		},
	}
	set.Flags().Int64Var(&limit, "limit", 0, "new limit")
	_ = set.MarkFlagRequired("limit")

	cmd.AddCommand(show, set)
	return cmd
}
