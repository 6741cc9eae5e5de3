package main

import (
	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/logging"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "bridgectl",
		Short: "Identity bridge between OAuth/OIDC providers and local accounts",
		Long: `bridgectl serves the login, callback and connection routes of the
configured strategies, manages the bridge database and lists the URLs that
must be registered with each provider.

Every config key can be overridden with a BRIDGE_ prefixed variable, for
example BRIDGE_BASE_URL or BRIDGE_CACHE_REDIS_ADDR.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "bridge.yaml", "Path to the bridge configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")

	cmd.AddCommand(
		newServeCmd(opts),
		newURLsCmd(opts),
		newMigrateCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

// load reads the configuration and builds the logger for a command.
func (o *rootOptions) load() (*bridge.Config, *logging.ZapLogger, error) {
	cfg, err := bridge.LoadConfig(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
