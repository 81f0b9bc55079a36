// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/empaai/empaai/internal/config"
	"github.com/empaai/empaai/internal/xdg"
)

// configFile is the --config flag shared by every subcommand.
var configFile string

// NewRootCmd creates the empaai command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "empaai",
		Short: "EmpaAI account service",
		Long: `EmpaAI account service: signup with email verification, cookie sessions,
password reset and profile updates over a JSON HTTP API.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "",
		"YAML config file path (default $XDG_CONFIG_HOME/empaai/config.yaml when present)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads the configuration for cmd, honoring flags set on it.
// Without --config the XDG default file is used if it exists.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		found, err := xdg.FindConfigFile()
		if err != nil {
			return nil, err
		}
		path = found
	}
	return config.Load(path, cmd.Flags())
}
