package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/labdesk-api/app"
	"github.com/upb/labdesk-api/models"
	"github.com/upb/labdesk-api/repositories"
	"github.com/upb/labdesk-api/utils"
	"go.uber.org/zap"
)

func newUsersCmd(c *cli) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage identities",
	}
	usersCmd.AddCommand(newSetRoleCmd(c, "promote", "Grant the admin role to an identity", models.RoleAdmin))
	usersCmd.AddCommand(newSetRoleCmd(c, "demote", "Return an identity to the user role", models.RoleUser))
	return usersCmd
}

func newSetRoleCmd(c *cli, use, short string, role models.Role) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, store, err := app.OpenStore(c.cfg, c.logger)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			identity, err := setRoleByEmail(cmd.Context(), repos.Users, email, role)
			if err != nil {
				return err
			}

			c.logger.Info("role updated",
				zap.String("identity_id", identity.ID.String()),
				zap.String("email", identity.Email),
				zap.String("role", string(role)))
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", identity.Email, role)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address of the identity")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// setRoleByEmail looks the identity up by email and sets its role
func setRoleByEmail(ctx context.Context, users repositories.UserRepository, email string, role models.Role) (*models.Identity, error) {
	email = models.NormalizeEmail(email)
	if err := utils.ValidateEmail(email); err != nil {
		return nil, err
	}

	identity, err := users.FindByProviderIDOrEmail(ctx, "", email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}
	if identity == nil {
		return nil, fmt.Errorf("no identity with email %s; the user must sign in once first", email)
	}

	if err := users.SetRole(ctx, identity.ID, role); err != nil {
		return nil, fmt.Errorf("failed to set role: %w", err)
	}
	identity.Role = role
	return identity, nil
}
