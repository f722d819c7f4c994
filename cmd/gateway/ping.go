package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"walletgateway/gateway/config"
	"walletgateway/gateway/walletrpc"
)

func newPingCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Call GetVersion on the configured wallet and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			wallet, err := walletrpc.Dial(walletDialConfig(cfg, nil))
			if err != nil {
				return err
			}
			defer func() { _ = wallet.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Wallet.CallTimeout)
			defer cancel()
			version, err := wallet.GetVersion(ctx)
			if err != nil {
				return fmt.Errorf("ping %s: %w", cfg.Wallet.Address, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cfg.Wallet.Address, version)
			return nil
		},
	}
}
