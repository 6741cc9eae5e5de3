package main

import (
	"fmt"
	"io"

	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

func newURLsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "urls",
		Short: "List the login and callback URLs of every strategy",
		Long: `List the absolute login, callback and failure URLs of every configured
strategy. Register the callback URLs with the providers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			registry, err := newRegistry(cfg, nil, logger.Named("registry"))
			if err != nil {
				return err
			}
			return renderURLs(cmd.OutOrStdout(), registry.URLs())
		},
	}
}

func renderURLs(out io.Writer, urls []bridge.StrategyURLs) error {
	if len(urls) == 0 {
		fmt.Fprintln(out, "No strategies configured.")
		return nil
	}

	headers := []string{"Strategy", "Label", "Login", "Callback", "Failure"}
	table := tablewriter.NewWriter(out)
	table.Options(
		tablewriter.WithHeader(headers),
		tablewriter.WithAlignment(tw.MakeAlign(len(headers), tw.AlignLeft)),
	)

	for _, u := range urls {
		if err := table.Append([]string{u.Name, u.Label, u.LoginURL, u.CallbackURL, u.FailureURL}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
