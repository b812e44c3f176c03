package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/churn"
)

var (
	pageOffset int
	pageLimit  int
	pageJSON   bool
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of stored records",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		n, err := store.Count(context.Background())
		if err != nil {
			fatal("Error counting records", err)
		}
		fmt.Println(n)
	},
}

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Print a page of records in identity order",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		store := openStore()
		defer store.Close()

		records, err := store.Page(context.Background(), pageOffset, pageLimit)
		if err != nil {
			fatal("Error reading records", err)
		}

		if pageJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(records); err != nil {
				fatal("Error encoding JSON", err)
			}
			return
		}

		for _, r := range records {
			read := " "
			if r.IsRead {
				read = "x"
			}
			color := "-"
			if r.Color != nil {
				color = fmt.Sprint(*r.Color)
			}
			fmt.Printf("%d [%s] color=%s %s %s %s\n",
				r.ID, read, color, r.FirstName, r.LastName, r.Date.Format("2006-01-02 15:04:05"))
		}
	},
}

func openStore() churn.Store {
	cfg, err := loadConfig()
	if err != nil {
		fatal("Error loading config", err)
	}
	store, err := churn.OpenStore(context.Background(), cfg.DSN, options(cfg)...)
	if err != nil {
		fatal("Error opening store", err)
	}
	return store
}

func init() {
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(pageCmd)
	pageCmd.Flags().IntVar(&pageOffset, "offset", 0, "First offset to print")
	pageCmd.Flags().IntVar(&pageLimit, "limit", 20, "Maximum number of records")
	pageCmd.Flags().BoolVar(&pageJSON, "json", false, "Output in JSON format")
}
