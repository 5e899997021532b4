package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/trackflow/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Load users, labels and issues from a YAML seed file",
	Long: `Load a YAML seed document into the configured backend. Without a file,
the bundled demo data is loaded. Issues refer to users and labels by name.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return seedRun(path)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func seedRun(path string) error {
	ctx := context.Background()

	var (
		seed *store.Seed
		err  error
	)
	if path != "" {
		seed, err = store.LoadSeed(path)
	} else {
		seed, err = store.DemoSeed()
	}
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would seed %d users, %d labels, %d issues", len(seed.Users), len(seed.Labels), len(seed.Issues))
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	res, err := store.ApplySeed(ctx, s, seed)
	if err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	ui.Success("Seeded %d users, %d labels, %d issues", res.Users, res.Labels, res.Issues)
	return nil
}
