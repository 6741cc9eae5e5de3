package main

import (
	"fmt"

	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

const masked = "********"

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			fmt.Fprintln(cmd.OutOrStdout(), print.MaybeHighlightJSON(maskSecrets(*cfg)))
			return nil
		},
	}
}

// maskSecrets returns a copy of cfg safe to print.
func maskSecrets(cfg bridge.Config) bridge.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = masked
		}
	}

	mask(&cfg.Session.Secret)
	mask(&cfg.Session.EncryptionKey)
	mask(&cfg.State.EncryptionKey)
	mask(&cfg.State.HMACKey)
	mask(&cfg.Vault.EncryptionKey)
	mask(&cfg.Cache.Redis.Password)
	mask(&cfg.Database.DSN)

	strategies := make([]bridge.StrategyConfig, len(cfg.Strategies))
	for i, s := range cfg.Strategies {
		options := make(map[string]any, len(s.Options))
		for k, v := range s.Options {
			if k == "client_secret" {
				v = masked
			}
			options[k] = v
		}
		s.Options = options
		strategies[i] = s
	}
	cfg.Strategies = strategies
	return cfg
}
