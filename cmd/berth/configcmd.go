package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"berth/cmd/berth/ui"
)

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(flags.cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			fmt.Print(ui.KeyValues("",
				ui.KV("file", flags.cfgPath),
				ui.KV("docker host", effectiveHost(flags)),
			))
			fmt.Println()
			fmt.Print(string(out))
			return nil
		},
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(flags.cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", flags.cfgPath)
			}
			if err := flags.cfg.Save(flags.cfgPath); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("wrote %s", flags.cfgPath))
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

func effectiveHost(flags *globalFlags) string {
	if flags.dockerHost != "" {
		return flags.dockerHost
	}
	return flags.cfg.EffectiveDockerHost()
}
