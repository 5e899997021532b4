package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/trackflow/internal/models"
	"github.com/joescharf/trackflow/internal/output"
	"github.com/joescharf/trackflow/internal/store"
)

var (
	labelName   string
	labelColor  string
	labelDesc   string
	labelSearch string
)

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Manage labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		return labelListRun()
	},
}

var labelListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List labels with usage counts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return labelListRun()
	},
}

var labelAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a label",
	Long:  "Add a label. Colours are hex values; see 'trackflow label colors' for the palette.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return labelAddRun()
	},
}

var labelUpdateCmd = &cobra.Command{
	Use:   "update <label>",
	Short: "Update a label (by ID or name)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return labelUpdateRun(cmd, args[0])
	},
}

var labelDeleteCmd = &cobra.Command{
	Use:     "delete <label>",
	Aliases: []string{"rm"},
	Short:   "Delete a label (by ID or name)",
	Long:    "Delete a label. Issues keep the label reference; it is no longer displayed.",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return labelDeleteRun(args[0])
	},
}

var labelColorsCmd = &cobra.Command{
	Use:   "colors",
	Short: "Show the label colour palette",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, c := range models.LabelColors {
			fmt.Fprintln(ui.Out, output.Swatch(c))
		}
		return nil
	},
}

func init() {
	labelListCmd.Flags().StringVar(&labelSearch, "search", "", "Filter by text in name or description")

	labelAddCmd.Flags().StringVar(&labelName, "name", "", "Label name (required)")
	labelAddCmd.Flags().StringVar(&labelColor, "color", models.DefaultLabelColor, "Hex colour, e.g. #EF4444")
	labelAddCmd.Flags().StringVar(&labelDesc, "desc", "", "Description")
	_ = labelAddCmd.MarkFlagRequired("name")

	labelUpdateCmd.Flags().StringVar(&labelName, "name", "", "New name")
	labelUpdateCmd.Flags().StringVar(&labelColor, "color", "", "New hex colour")
	labelUpdateCmd.Flags().StringVar(&labelDesc, "desc", "", "New description")

	labelCmd.AddCommand(labelListCmd)
	labelCmd.AddCommand(labelAddCmd)
	labelCmd.AddCommand(labelUpdateCmd)
	labelCmd.AddCommand(labelDeleteCmd)
	labelCmd.AddCommand(labelColorsCmd)
	rootCmd.AddCommand(labelCmd)
}

// resolveLabelID resolves a single label by numeric ID or case-insensitive name.
func resolveLabelID(ctx context.Context, s store.Store, ref string) (int64, error) {
	ids, err := store.ResolveLabels(ctx, s, []string{ref})
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("label is required")
	}
	return ids[0], nil
}

func labelListRun() error {
	ctx := context.Background()
	s, err := getStore()
	if err != nil {
		return err
	}

	labels, err := s.ListLabels(ctx)
	if err != nil {
		return err
	}
	if labelSearch = strings.TrimSpace(labelSearch); labelSearch != "" {
		var matched []*models.Label
		for _, l := range labels {
			if l.Matches(labelSearch) {
				matched = append(matched, l)
			}
		}
		labels = matched
	}
	if len(labels) == 0 {
		ui.Info("No labels found.")
		return nil
	}

	issues, err := s.ListIssues(ctx)
	if err != nil {
		return err
	}
	usage := make(map[int64]int)
	for _, issue := range issues {
		for _, id := range issue.LabelIDs {
			usage[id]++
		}
	}

	table := ui.Table([]string{"ID", "Name", "Color", "Issues", "Description"})
	for _, l := range labels {
		_ = table.Append([]string{
			fmt.Sprintf("%d", l.ID),
			l.Name,
			output.Swatch(l.Color),
			fmt.Sprintf("%d", usage[l.ID]),
			l.Description,
		})
	}
	_ = table.Render()
	return nil
}

func labelAddRun() error {
	ctx := context.Background()
	s, err := getStore()
	if err != nil {
		return err
	}

	l := &models.Label{Name: labelName, Color: labelColor, Description: labelDesc}

	if dryRun {
		ui.DryRunMsg("Would add label: %s %s", l.Name, l.Color)
		return nil
	}

	created, err := s.CreateLabel(ctx, l)
	if err != nil {
		ui.Error("Failed to create label")
		return err
	}
	ui.Success("Label created successfully: %s %s", output.Swatch(created.Color), created.Name)
	return nil
}

func labelUpdateRun(cmd *cobra.Command, ref string) error {
	ctx := context.Background()
	s, err := getStore()
	if err != nil {
		return err
	}
	id, err := resolveLabelID(ctx, s, ref)
	if err != nil {
		return err
	}

	var patch models.LabelPatch
	flags := cmd.Flags()
	if flags.Changed("name") {
		patch.Name = &labelName
	}
	if flags.Changed("color") {
		patch.Color = &labelColor
	}
	if flags.Changed("desc") {
		patch.Description = &labelDesc
	}
	if patch == (models.LabelPatch{}) {
		return fmt.Errorf("no updates specified (use --name, --color or --desc)")
	}

	if dryRun {
		ui.DryRunMsg("Would update label #%d", id)
		return nil
	}

	if _, err := s.UpdateLabel(ctx, id, patch); err != nil {
		ui.Error("Failed to update label")
		return err
	}
	ui.Success("Label updated successfully")
	return nil
}

func labelDeleteRun(ref string) error {
	ctx := context.Background()
	s, err := getStore()
	if err != nil {
		return err
	}
	id, err := resolveLabelID(ctx, s, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete label #%d", id)
		return nil
	}

	if err := s.DeleteLabel(ctx, id); err != nil {
		ui.Error("Failed to delete label")
		return err
	}
	ui.Success("Label deleted successfully")
	return nil
}
