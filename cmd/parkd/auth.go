package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/steveyegge/parkd/internal/errs"
	"github.com/steveyegge/parkd/internal/remote"
	"github.com/steveyegge/parkd/internal/schema"
	"github.com/steveyegge/parkd/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	GroupID: "account",
	Short:   "Sign in",
	Long: `Sign in with email and password. Requires a network connection.

The password is read from the terminal, or from the first line of stdin
when stdin is not a terminal. After signing in, favorites and reservations
are reconciled with the backend.`,
	Run: func(cmd *cobra.Command, args []string) {
		email, _ := cmd.Flags().GetString("email")
		email = promptIfEmpty(email, "Email: ")
		password := readPassword("Password: ")

		ctx := context.Background()
		a := openApp(ctx, false)
		defer a.Close()

		profile, err := a.Sessions.Login(ctx, email, password)
		if err != nil {
			fatalf("Error: %s", errs.UserMessage(err))
		}
		a.Reconciler.ReconcileUser(ctx, profile.ID)

		emit(profile, func() {
			fmt.Printf("%s Signed in as %s\n", ui.RenderPass("✓"), profile.Email)
		})
	},
}

var registerCmd = &cobra.Command{
	Use:     "register",
	GroupID: "account",
	Short:   "Create an account",
	Long:    `Create an account and sign in. Requires a network connection.`,
	Run: func(cmd *cobra.Command, args []string) {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")
		phone, _ := cmd.Flags().GetString("phone")
		plate, _ := cmd.Flags().GetString("plate")

		in := remote.RegisterInput{
			Email:       promptIfEmpty(email, "Email: "),
			Name:        promptIfEmpty(name, "Name: "),
			PhoneNumber: promptIfEmpty(phone, "Phone: "),
		}
		if plate != "" {
			in.LicensePlate = schema.StringPtr(plate)
		}
		in.Password = readPassword("Password: ")
		if err := in.Validate(); err != nil {
			fatalf("Error: %v", err)
		}

		ctx := context.Background()
		a := openApp(ctx, false)
		defer a.Close()

		profile, err := a.Sessions.Register(ctx, in)
		if err != nil {
			fatalf("Error: %s", errs.UserMessage(err))
		}
		emit(profile, func() {
			fmt.Printf("%s Account created for %s\n", ui.RenderPass("✓"), profile.Email)
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	GroupID: "account",
	Short:   "Sign out",
	Long: `Sign out. Cached favorites and reservations stay on this device and
reappear when the same account signs in again.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx, false)
		defer a.Close()

		if a.Sessions.UserID() == "" {
			fmt.Println("Not signed in.")
			return
		}
		if err := a.Sessions.Logout(ctx); err != nil {
			fatalf("Error: %s", errs.UserMessage(err))
		}
		fmt.Printf("%s Signed out\n", ui.RenderPass("✓"))
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "account",
	Short:   "Show the signed-in account",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a := openApp(ctx, false)
		defer a.Close()

		profile := a.Sessions.Current()
		if profile == nil {
			fatalf("Not signed in.")
		}
		emit(profile, func() {
			fmt.Printf("%s %s\n", ui.RenderAccent(profile.Name), ui.RenderMuted("<"+profile.Email+">"))
			fmt.Printf("   ID: %s\n", profile.ID)
			fmt.Printf("   Phone: %s\n", profile.PhoneNumber)
			if profile.LicensePlate != nil {
				fmt.Printf("   Plate: %s\n", *profile.LicensePlate)
			}
		})
	},
}

var stdin = bufio.NewReader(os.Stdin)

func promptIfEmpty(value, prompt string) string {
	if value != "" {
		return value
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, prompt)
	}
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		fatalf("Error: %s is required", strings.TrimSuffix(strings.ToLower(prompt), ": "))
	}
	return strings.TrimSpace(line)
}

func readPassword(prompt string) string {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			fatalf("Error: password is required")
		}
		return strings.TrimRight(line, "\r\n")
	}

	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fatalf("Error reading password: %v", err)
	}
	return string(pw)
}

func init() {
	loginCmd.Flags().StringP("email", "e", "", "account email")

	registerCmd.Flags().StringP("email", "e", "", "account email")
	registerCmd.Flags().String("name", "", "display name")
	registerCmd.Flags().String("phone", "", "phone number")
	registerCmd.Flags().String("plate", "", "licence plate (optional)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
