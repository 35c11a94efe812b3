package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/robfarr/markpilot/internal/client"
)

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in to the scoring service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := promptPassword("Password: ")
		if err != nil {
			return err
		}

		user, err := authStore.Login(context.Background(), client.Credentials{
			Email:    args[0],
			Password: password,
		})
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}

		fmt.Printf("Logged in as %s\n", user.Email)
		return nil
	},
}

var signupCmd = &cobra.Command{
	Use:   "signup <name> <email>",
	Short: "Create an account on the scoring service",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := promptPassword("Choose a password: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}

		user, err := authStore.Signup(context.Background(), client.SignupInput{
			Name:     args[0],
			Email:    args[1],
			Password: password,
		})
		if err != nil {
			return fmt.Errorf("signup: %w", err)
		}

		fmt.Printf("Account created, logged in as %s\n", user.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and clear the cached session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := authStore.Logout(context.Background()); err != nil {
			// The local session is cleared regardless; just mention it.
			fmt.Fprintf(os.Stderr, "Warning: server logout failed: %v\n", err)
		}
		fmt.Println("Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		// Verify against the server: the cached flag is a UI hint, the
		// session cookie is the authority.
		user, err := authStore.Verify(context.Background())
		if err != nil {
			return fmt.Errorf("verify session: %w", err)
		}
		if user == nil {
			fmt.Println("Session expired, run \"markpilot login\"")
			return nil
		}
		fmt.Printf("%s <%s>\n", user.Name, user.Email)
		return nil
	},
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
