package main

import (
	"fmt"
	"os"

	"github.com/pg-bridge/pgbridge/app"
	"github.com/pg-bridge/pgbridge/pkg/bridgelog"
	"github.com/pg-bridge/pgbridge/pkg/config"
	"github.com/pg-bridge/pgbridge/pkg/version"
	"github.com/spf13/cobra"
)

var (
	cfgPath   string
	host      string
	port      int
	database  string
	logLevel  string
	prettyLog bool
)

var rootCmd = &cobra.Command{
	Use:   "pgbridge run --config `path-to-config`",
	Short: "pgbridge",
	Long:  "PostgreSQL wire protocol gateway for the Aurora Data API",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "listen host")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "listen port")
	rootCmd.PersistentFlags().StringVarP(&database, "database", "d", "", "target database name")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warning, error, fatal)")
	rootCmd.PersistentFlags().BoolVar(&prettyLog, "pretty-log", false, "human-readable log output")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgPath != "" {
			if err := config.LoadBridgeCfg(cfgPath); err != nil {
				return err
			}
		}
		config.LoadEnv()

		cfg := config.BridgeConfig()
		// Flags win over file and environment.
		if host != "" {
			cfg.Host = host
		}
		if port != 0 {
			cfg.Port = port
		}
		if database != "" {
			cfg.Database = database
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if prettyLog {
			cfg.PrettyLog = true
		}

		if err := config.Validate(); err != nil {
			return err
		}

		bridgelog.ReloadLogger(cfg.PrettyLog, cfg.LogLevel)
		bridgelog.Zero.Info().Str("version", version.BridgeVersionRevision).Msg("starting pgbridge")
		bridgelog.Zero.Debug().Msg(config.Pretty())

		return app.NewApp(cfg).Run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pgbridge %s\n", version.BridgeVersionRevision)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		bridgelog.Zero.Error().Err(err).Msg("exited with failure")
		os.Exit(1)
	}
}
