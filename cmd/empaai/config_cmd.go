// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmpaAI Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/empaai/empaai/internal/config"
)

// NewConfigCmd groups configuration helpers.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := config.GenerateSchema()
			if err != nil {
				return err
			}
			cmd.Println(string(schema))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.Printf("configuration ok (environment=%s, sessions=%s, mail=%s)\n",
				cfg.Environment, cfg.Sessions.Store, cfg.Mail.Transport)
			return nil
		},
	})
	return cmd
}
