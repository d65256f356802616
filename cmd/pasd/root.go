package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nullgarden/pasd/config"
)

var rootCmd = &cobra.Command{
	Use:   "pasd",
	Short: "Encrypted secret-storage daemon",
	Long: `pasd runs a local secret store: keys and secrets live in one
encrypted database file, reachable only over a unix-socket IPC
channel on this machine.`,
}

// Execute adds all child commands to the root command and runs it.
// Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	config.BindFlags(rootCmd.PersistentFlags())
}

// loadConfig binds cmd's flags into viper and loads the merged
// file/env/flag configuration, mirroring the pack's BindPFlags-then-
// Load wiring.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := viper.GetViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	return config.Load(v)
}
