// Command medscribe runs the medical transcription service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kbukum/medscribe/app"
	"github.com/kbukum/medscribe/config"
	"github.com/kbukum/medscribe/version"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile, envFile string

	load := func(migrate bool) (*app.Service, error) {
		cfg := app.Config{}
		cfg.Version = version.Get().Short()

		var opts []config.LoaderOption
		if configFile != "" {
			opts = append(opts, config.WithConfigFile(configFile))
		}
		if envFile != "" {
			opts = append(opts, config.WithEnvFile(envFile))
		}
		if err := config.LoadConfig(app.ServiceName, &cfg, opts...); err != nil {
			return nil, err
		}
		if migrate {
			cfg.Database.Migrate = true
		}
		return app.New(&cfg)
	}

	root := &cobra.Command{
		Use:          app.ServiceName,
		Short:        "Real-time medical transcription service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := load(false)
			if err != nil {
				return err
			}
			return svc.Run(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to the YAML config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file")

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := load(true)
			if err != nil {
				return err
			}
			return svc.Migrate(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	})
	return root
}
