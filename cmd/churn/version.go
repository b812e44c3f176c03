package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/churn"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of churn",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("churn version %s\n", strings.TrimSpace(churn.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
