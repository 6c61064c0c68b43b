package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func addAuth(topLevel *cobra.Command, e *env) {
	var password string

	signup := &cobra.Command{
		Use:   "signup EMAIL",
		Short: "Create an account and sync any pending entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := e.identity.SignUp(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Printf("Signed up as %s.\n", session.Email)
			return nil
		},
	}
	signup.Flags().StringVarP(&password, "password", "p", "", "account password (min 8 characters)")
	_ = signup.MarkFlagRequired("password")
	topLevel.AddCommand(signup)

	var signinPassword string
	signin := &cobra.Command{
		Use:   "signin EMAIL",
		Short: "Sign in and sync any pending entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := e.identity.SignIn(cmd.Context(), args[0], signinPassword)
			if err != nil {
				return err
			}
			fmt.Printf("Signed in as %s.\n", session.Email)
			return nil
		},
	}
	signin.Flags().StringVarP(&signinPassword, "password", "p", "", "account password")
	_ = signin.MarkFlagRequired("password")
	topLevel.AddCommand(signin)

	topLevel.AddCommand(&cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.identity.SignOut(cmd.Context()); err != nil {
				fmt.Printf("Server sign-out failed (%v); local session cleared anyway.\n", err)
				return nil
			}
			fmt.Println("Signed out.")
			return nil
		},
	})

	topLevel.AddCommand(&cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := e.identity.CheckSession(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Not signed in.")
				return nil
			}
			session := e.identity.Session()
			fmt.Printf("%s (%s)\n", session.DisplayName, session.Email)
			return nil
		},
	})

	addOAuth(topLevel, e)
	addPassword(topLevel, e)
}

func addOAuth(topLevel *cobra.Command, e *env) {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Sign in with an OAuth provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "begin PROVIDER",
		Short: "Get the consent URL for a provider (google, github)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, state, err := e.identity.BeginOAuth(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Open this URL in your browser:\n\n  %s\n\nThen finish with:\n\n  moodctl oauth complete %s --state %s --code CODE\n", url, args[0], state)
			return nil
		},
	})

	var state, code string
	complete := &cobra.Command{
		Use:   "complete PROVIDER",
		Short: "Finish the OAuth sign-in with the code from the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := e.identity.CompleteOAuth(cmd.Context(), args[0], state, code)
			if err != nil {
				return err
			}
			fmt.Printf("Signed in as %s.\n", session.Email)
			return nil
		},
	}
	complete.Flags().StringVar(&state, "state", "", "state token from 'oauth begin'")
	complete.Flags().StringVar(&code, "code", "", "authorization code from the provider redirect")
	_ = complete.MarkFlagRequired("state")
	_ = complete.MarkFlagRequired("code")
	cmd.AddCommand(complete)

	topLevel.AddCommand(cmd)
}

func addPassword(topLevel *cobra.Command, e *env) {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Reset a forgotten password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "forgot EMAIL",
		Short: "Request a password reset email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			devToken, err := e.identity.RequestPasswordReset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println("If that address has an account, a reset email is on its way.")
			if devToken != "" {
				fmt.Printf("(dev mode, no SMTP configured) reset token: %s\n", devToken)
			}
			return nil
		},
	})

	var newPassword string
	reset := &cobra.Command{
		Use:   "reset TOKEN",
		Short: "Set a new password using a reset token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.identity.ResetPassword(cmd.Context(), args[0], newPassword); err != nil {
				return err
			}
			fmt.Println("Password updated. Sign in with: moodctl signin EMAIL")
			return nil
		},
	}
	reset.Flags().StringVarP(&newPassword, "password", "p", "", "new password (min 8 characters)")
	_ = reset.MarkFlagRequired("password")
	cmd.AddCommand(reset)

	topLevel.AddCommand(cmd)
}
