package main

import (
	"time"

	"github.com/spf13/cobra"

	"tally/internal/platform/config"
	"tally/pkg/platform/middleware/admin"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin token for POST /admin/rebuild",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := admin.IssueToken(config.FromEnv().AdminKey, subject, ttl)
			if err != nil {
				return err
			}
			cmd.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject recorded in rebuild logs")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
