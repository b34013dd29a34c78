package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/formatter"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/prompter"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/session"
)

var (
	loginEmail    string
	loginPassword string
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Log in and out of the task manager",
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		p := prompter.New()
		email := loginEmail
		if email == "" {
			if email, err = p.String("Email: "); err != nil {
				return err
			}
		}
		password := loginPassword
		if password == "" {
			if password, err = p.Password("Password: "); err != nil {
				return err
			}
		}

		if err := a.Session.Login(cmd.Context(), session.Credentials{Email: email, Password: password}); err != nil {
			return err
		}
		user := a.Session.CurrentUser()
		printer.Success("Logged in as %s", user.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and forget local credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.Session.IsAuthenticated() {
			printer.Info("Not logged in")
			return nil
		}
		return a.Session.Logout(cmd.Context(), "")
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Display the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := requireLogin(a); err != nil {
			return err
		}
		user := a.Session.CurrentUser()
		return printer.Record("Current user", formatter.UserFields(user), user)
	},
}

var changePasswordCmd = &cobra.Command{
	Use:   "change-password",
	Short: "Change your password",
	Long:  "Change your password. Sessions on other devices are revoked.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := requireLogin(a); err != nil {
			return err
		}

		p := prompter.New()
		current, err := p.Password("Current password: ")
		if err != nil {
			return err
		}
		next, err := p.Password("New password: ")
		if err != nil {
			return err
		}
		confirm, err := p.Password("Confirm new password: ")
		if err != nil {
			return err
		}
		if next != confirm {
			return fmt.Errorf("passwords do not match")
		}

		msg, err := a.Auth.ChangePassword(cmd.Context(), current, next)
		if err != nil {
			return err
		}
		if msg == "" {
			msg = "Password changed. Please login again."
		}
		// The server revoked every session, this one too.
		return a.Session.Logout(cmd.Context(), msg)
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Email address (prompted when empty)")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password (prompted when empty)")

	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(whoamiCmd)
	authCmd.AddCommand(changePasswordCmd)
}
