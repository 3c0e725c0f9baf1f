/*
Copyright © 2024 paul <paul@denknerd.org>
*/
package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var configUsage = strings.TrimSpace(`
Commands in this namespace are to help you configure the backup.  Find out what the effective config
is (the access token is redacted), or learn which file it's being read from.
`)

// configCmd groups commands showing how the YAML config file and the flags combine.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective backup configuration",
	Long:  configUsage,
}

func init() {
	rootCmd.AddCommand(configCmd)
}
