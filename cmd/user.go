package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trk-project/trk/internal/auth"
	"github.com/trk-project/trk/internal/output"
	"github.com/trk-project/trk/internal/tracker"
)

var (
	userEmail    string
	userDisplay  string
	userPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userRegisterCmd = &cobra.Command{
	Use:   "register <handle>",
	Short: "Register a new user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userRegisterRun(args[0])
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

var userTokenCmd = &cobra.Command{
	Use:   "token <handle>",
	Short: "Mint an API token for a user",
	Long: `Mint a bearer token for the API server. The token is shown once;
only its digest is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userTokenRun(args[0])
	},
}

func init() {
	userRegisterCmd.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
	userRegisterCmd.Flags().StringVar(&userDisplay, "name", "", "Display name")
	userRegisterCmd.Flags().StringVar(&userPassword, "password", "", "Password (required, min 8 chars)")
	_ = userRegisterCmd.MarkFlagRequired("email")
	_ = userRegisterCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userRegisterCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userTokenCmd)
	rootCmd.AddCommand(userCmd)
}

func userRegisterRun(handle string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if dryRun {
		ui.DryRunMsg("Would register user %s <%s>", handle, userEmail)
		return nil
	}

	u, err := svc.RegisterUser(ctx, tracker.RegisterParams{
		Handle:      handle,
		Email:       userEmail,
		DisplayName: userDisplay,
		Password:    userPassword,
	})
	if err != nil {
		return err
	}
	ui.Success("Registered user %s (%s)", output.Cyan(u.Handle), shortID(u.ID))
	return nil
}

func userListRun() error {
	svc, err := getService()
	if err != nil {
		return err
	}
	ctx := context.Background()

	actor, err := currentActor(ctx)
	if err != nil {
		return err
	}

	users, err := svc.ListUsers(ctx, actor, 0, 0)
	if err != nil {
		return err
	}

	if len(users) == 0 {
		ui.Info("No users registered.")
		return nil
	}

	table := ui.Table([]string{"ID", "Handle", "Name", "Email"})
	for _, u := range users {
		_ = table.Append([]string{shortID(u.ID), u.Handle, u.DisplayName, u.Email})
	}
	_ = table.Render()
	return nil
}

func userTokenRun(handle string) error {
	svc, err := getService()
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	u, err := svc.GetUserByHandle(ctx, handle)
	if err != nil {
		return fmt.Errorf("unknown user %q: %w", handle, err)
	}

	if dryRun {
		ui.DryRunMsg("Would mint a token for %s", handle)
		return nil
	}

	token, err := auth.NewAuthenticator(s).MintToken(ctx, u)
	if err != nil {
		return err
	}
	ui.Success("Token for %s (store it now, it is not shown again):", output.Cyan(handle))
	fmt.Fprintln(ui.Out, token)
	return nil
}
