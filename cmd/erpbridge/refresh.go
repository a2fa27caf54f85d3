package main

import (
	"fmt"
	"time"

	"github.com/erpbridge/erpbridge/internal/config"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var refreshCmd = structuredLog(&cobra.Command{
	Use:   "refresh <credential-id>",
	Short: "Refresh the tokens of a stored credential.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return newUsageError("invalid credential id %q: %w", args[0], err)
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		cred, err := a.auth.Refresh(cmd.Context(), id)
		if err != nil {
			return err
		}
		expires := "never"
		if cred.ExpiresAt != nil {
			expires = cred.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "refreshed %s credential %s, expires %s\n", cred.Type, cred.ID, expires)
		return nil
	},
})
