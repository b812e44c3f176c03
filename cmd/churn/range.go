package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aretw0/churn/pkg/adapters/rangefile"
	"github.com/aretw0/churn/pkg/core"
)

const defaultRangeFile = "range.yaml"

var rangeFile string

var rangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Manage the visible range file read by `churn run`",
}

var rangeSetCmd = &cobra.Command{
	Use:   "set <lo> <hi>",
	Short: "Set the visible range",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		lo, err := strconv.Atoi(args[0])
		if err != nil {
			fatal("Invalid lo", err)
		}
		hi, err := strconv.Atoi(args[1])
		if err != nil {
			fatal("Invalid hi", err)
		}

		path := resolveRangeFile()
		if err := rangefile.Write(path, core.Range{Lo: lo, Hi: hi}); err != nil {
			fatal("Error writing range", err)
		}
		fmt.Printf("visible range [%d, %d] written to %s\n", lo, hi, path)
	},
}

var rangeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the visible range",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := rangefile.Clear(resolveRangeFile()); err != nil {
			fatal("Error clearing range", err)
		}
		fmt.Println("visible range cleared")
	},
}

var rangeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the visible range",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		r, err := rangefile.Read(resolveRangeFile())
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("no visible range")
			return
		}
		if err != nil {
			fatal("Error reading range", err)
		}
		fmt.Println(r)
	},
}

func resolveRangeFile() string {
	if rangeFile != "" {
		return rangeFile
	}
	cfg, err := loadConfig()
	if err != nil {
		fatal("Error loading config", err)
	}
	return firstNonEmpty(cfg.RangeFile, defaultRangeFile)
}

func init() {
	rootCmd.AddCommand(rangeCmd)
	rangeCmd.AddCommand(rangeSetCmd, rangeClearCmd, rangeShowCmd)
	rangeCmd.PersistentFlags().StringVarP(&rangeFile, "file", "f", "", "Range file (default from config, else range.yaml)")
}
