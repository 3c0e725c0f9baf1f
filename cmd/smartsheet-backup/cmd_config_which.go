/*
Copyright © 2024 paul <paul@denknerd.org>
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// whichCmd represents the which command
var whichCmd = &cobra.Command{
	Use:   "which",
	Short: "Tell me the resolved config path",
	Long: `
Output the filename that's being used to store your config, and whether it exists.
`,
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(Config); err != nil {
			fmt.Printf("Config path: %s (not found, using flags only)\n", Config)
			return
		}
		fmt.Printf("Config path: %s\n", Config)
	},
}

func init() {
	configCmd.AddCommand(whichCmd)
}
