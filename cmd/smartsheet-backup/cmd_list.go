/*
Copyright © 2024 paul <paul@denknerd.org>
*/
package main

import (
	"github.com/spf13/cobra"
)

// listCmd groups read-only queries against the organization; nothing is written to the output
// directory.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List what the organization holds",
	Long: `
Commands in this namespace query the organization with the same access token a backup uses, so
you can check who would be backed up before running one.
`,
}

func init() {
	rootCmd.AddCommand(listCmd)
}
