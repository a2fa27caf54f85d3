package main

import (
	"fmt"
	"io"

	"github.com/erpbridge/erpbridge/internal/config"
	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the configured providers.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOptionalDB()
		if err != nil {
			return err
		}
		reg, err := buildConnectorRegistry(cfg, nil)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, conn := range reg.All() {
			fmt.Fprintf(out, "%s\t%s\n", conn.Kind(), conn.DisplayName())
		}
		return nil
	},
}

var authURLCmd = &cobra.Command{
	Use:   "auth-url <provider>",
	Short: "Print the URL that starts authentication with a provider.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOptionalDB()
		if err != nil {
			return err
		}
		state, _ := cmd.Flags().GetString("state")
		return printAuthURL(cfg, args[0], state, cmd.OutOrStdout())
	},
}

func init() {
	authURLCmd.Flags().String("state", "", "opaque state value echoed back to the callback")
}

func printAuthURL(cfg config.Config, provider, state string, out io.Writer) error {
	reg, err := buildConnectorRegistry(cfg, nil)
	if err != nil {
		return err
	}
	conn, err := reg.Resolve(provider)
	if err != nil {
		return newUsageError("%w", err)
	}
	u, err := conn.AuthURL(state)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, u)
	return nil
}
