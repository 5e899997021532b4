package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/trackflow/internal/models"
	"github.com/joescharf/trackflow/internal/output"
	"github.com/joescharf/trackflow/internal/store"
)

var (
	userName   string
	userEmail  string
	userAvatar string
	userRole   string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage team members",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List users with their open and closed issue counts",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return userAddRun()
	},
}

var userUpdateCmd = &cobra.Command{
	Use:   "update <user>",
	Short: "Update a user (by ID or name)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userUpdateRun(cmd, args[0])
	},
}

var userDeleteCmd = &cobra.Command{
	Use:     "delete <user>",
	Aliases: []string{"rm"},
	Short:   "Delete a user (by ID or name)",
	Long:    "Delete a user. Issues assigned to the user keep the reference.",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userDeleteRun(args[0])
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userName, "name", "", "Full name (required)")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address")
	userAddCmd.Flags().StringVar(&userAvatar, "avatar", "", "Avatar URL")
	userAddCmd.Flags().StringVar(&userRole, "role", "developer", "Role: developer, tester, manager, admin")
	_ = userAddCmd.MarkFlagRequired("name")

	userUpdateCmd.Flags().StringVar(&userName, "name", "", "New name")
	userUpdateCmd.Flags().StringVar(&userEmail, "email", "", "New email")
	userUpdateCmd.Flags().StringVar(&userAvatar, "avatar", "", "New avatar URL")
	userUpdateCmd.Flags().StringVar(&userRole, "role", "", "New role")

	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userUpdateCmd)
	userCmd.AddCommand(userDeleteCmd)
	rootCmd.AddCommand(userCmd)
}

// resolveUserID resolves a user by numeric ID or case-insensitive name.
func resolveUserID(ctx context.Context, s store.Store, ref string) (int64, error) {
	userRef, err := store.ResolveUser(ctx, s, ref)
	if err != nil {
		return 0, err
	}
	if userRef == "" {
		return 0, fmt.Errorf("user is required")
	}
	return strconv.ParseInt(userRef, 10, 64)
}

func userListRun() error {
	ctx := context.Background()
	s, err := getStore()
	if err != nil {
		return err
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		ui.Info("No users found.")
		return nil
	}
	issues, err := s.ListIssues(ctx)
	if err != nil {
		return err
	}

	open := make(map[string]int)
	closed := make(map[string]int)
	for _, issue := range issues {
		if issue.Status == models.IssueStatusClosed {
			closed[issue.Assignee]++
		} else {
			open[issue.Assignee]++
		}
	}

	table := ui.Table([]string{"ID", "Name", "Email", "Role", "Open", "Closed"})
	for _, u := range users {
		_ = table.Append([]string{
			u.Ref(),
			u.Name,
			u.Email,
			string(u.Role),
			fmt.Sprintf("%d", open[u.Ref()]),
			fmt.Sprintf("%d", closed[u.Ref()]),
		})
	}
	_ = table.Render()
	return nil
}

func userAddRun() error {
	ctx := context.Background()
	s, err := getStore()
	if err != nil {
		return err
	}

	u := &models.User{
		Name:   userName,
		Email:  userEmail,
		Avatar: userAvatar,
		Role:   models.UserRole(userRole),
	}

	if dryRun {
		ui.DryRunMsg("Would add user: %s (%s)", u.Name, u.Role)
		return nil
	}

	created, err := s.CreateUser(ctx, u)
	if err != nil {
		ui.Error("Failed to create user")
		return err
	}
	ui.Success("User created successfully: %s (#%d)", output.Cyan(created.Name), created.ID)
	return nil
}

func userUpdateRun(cmd *cobra.Command, ref string) error {
	ctx := context.Background()
	s, err := getStore()
	if err != nil {
		return err
	}
	id, err := resolveUserID(ctx, s, ref)
	if err != nil {
		return err
	}

	var patch models.UserPatch
	flags := cmd.Flags()
	if flags.Changed("name") {
		patch.Name = &userName
	}
	if flags.Changed("email") {
		patch.Email = &userEmail
	}
	if flags.Changed("avatar") {
		patch.Avatar = &userAvatar
	}
	if flags.Changed("role") {
		r := models.UserRole(userRole)
		patch.Role = &r
	}
	if patch == (models.UserPatch{}) {
		return fmt.Errorf("no updates specified (use --name, --email, --avatar or --role)")
	}

	if dryRun {
		ui.DryRunMsg("Would update user #%d", id)
		return nil
	}

	if _, err := s.UpdateUser(ctx, id, patch); err != nil {
		ui.Error("Failed to update user")
		return err
	}
	ui.Success("User updated successfully")
	return nil
}

func userDeleteRun(ref string) error {
	ctx := context.Background()
	s, err := getStore()
	if err != nil {
		return err
	}
	id, err := resolveUserID(ctx, s, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete user #%d", id)
		return nil
	}

	if err := s.DeleteUser(ctx, id); err != nil {
		ui.Error("Failed to delete user")
		return err
	}
	ui.Success("User deleted successfully")
	return nil
}
