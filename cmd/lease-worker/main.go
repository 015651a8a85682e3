// Package main is the entry point for the lease-worker CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sungwon/lease-worker/internal/auth"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lease-worker",
		Short:         "Queue consumer that keeps message leases alive while handlers run",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(runCmd())
	cmd.AddCommand(sendCmd())
	cmd.AddCommand(keygenCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lease-worker %s (%s)\n", version, commit)
		},
	}
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ops API key and the hash to configure",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}
			hash, err := auth.HashAPIKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "api key: %s\nhttp.api_key_hash: %s\n", key, hash)
			return nil
		},
	}
}
