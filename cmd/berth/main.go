package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"berth/cmd/berth/ui"
	"berth/config"
	"berth/internal/logging"
)

var version = "dev"

func main() {
	var flags globalFlags
	if err := logging.Configure(logging.LevelWarn, logging.FormatText); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "berth",
		Short:         "Watch and manage local Docker containers",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := flags.configPath
			if path == "" {
				path = config.Path()
			}
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if flags.debug {
				level = logging.LevelDebug
			}
			if err := logging.Configure(level, cfg.LogFormat); err != nil {
				return err
			}
			ui.Configure(flags.noColor)
			flags.cfg = cfg
			flags.cfgPath = path
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/berth/config.yaml)")
	root.PersistentFlags().StringVarP(&flags.dockerHost, "host", "H", "", "Docker daemon address")
	root.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "Disable colour output")

	root.AddCommand(
		watchCmd(&flags),
		psCmd(&flags),
		logsCmd(&flags),
		inspectCmd(&flags),
		actionCmd(&flags, "start", "Start containers", actionStart),
		actionCmd(&flags, "stop", "Stop containers", actionStop),
		actionCmd(&flags, "restart", "Restart containers", actionRestart),
		actionCmd(&flags, "rm", "Remove stopped containers", actionRemove),
		groupCmd(&flags),
		configCmd(&flags),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorMsg("%v", err))
		os.Exit(1)
	}
}
