package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/churn"
)

var seedCount int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed an empty store with sample records",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatal("Error loading config", err)
		}

		extra := []churn.Option{churn.WithDefaultProducers(false)}
		if cmd.Flags().Changed("count") {
			extra = append(extra, churn.WithSeedCount(seedCount))
		}

		ctx := context.Background()
		c, err := churn.New(ctx, cfg.DSN, options(cfg, extra...)...)
		if err != nil {
			fatal("Error initializing churn", err)
		}
		defer c.Store().Close()

		n, err := c.SeedIfEmpty(ctx)
		if err != nil {
			fatal("Error seeding store", err)
		}
		if n == 0 {
			fmt.Println("store already seeded, nothing to do")
			return
		}
		fmt.Printf("seeded %d records\n", n)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().IntVarP(&seedCount, "count", "n", 0, "Number of records (default from config, else 1000000)")
}
