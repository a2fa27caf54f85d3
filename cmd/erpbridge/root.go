package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:               "erpbridge",
	Short:             "erpbridge connects tenants to their ERP and serves canonical leads, contacts and finance data.",
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: prepareCommand,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, providersCmd, authURLCmd, refreshCmd, modulesCmd)
}
