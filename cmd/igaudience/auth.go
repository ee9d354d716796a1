package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igaudience/pkg/credentials"
	"igaudience/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage API tokens",
	Long: `Manage the Apify token and OpenAI API key.

Tokens are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read only)

Never share your tokens or config files!`,
}

// authSetCmd represents the auth set command
var authSetCmd = &cobra.Command{
	Use:       "set <apify|openai>",
	Short:     "Store a token securely",
	Long:      `Store a token in the system keychain or the encrypted file. You will be prompted for the value; input is hidden.`,
	Example:   `  igaudience auth set apify`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: credentials.Services,
	RunE:      runAuthSet,
}

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which tokens are configured",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

// authRemoveCmd represents the auth remove command
var authRemoveCmd = &cobra.Command{
	Use:       "remove <apify|openai>",
	Short:     "Remove a stored token",
	Args:      cobra.ExactArgs(1),
	ValidArgs: credentials.Services,
	RunE:      runAuthRemove,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRemoveCmd)
}

func serviceArg(arg string) (string, error) {
	service := strings.ToLower(strings.TrimSpace(arg))
	if !credentials.ValidService(service) {
		return "", fmt.Errorf("unknown service %q (want %s)", arg, strings.Join(credentials.Services, " or "))
	}
	return service, nil
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	service, err := serviceArg(args[0])
	if err != nil {
		return err
	}
	manager, err := credentials.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if existing, _ := manager.Retrieve(service); existing != nil {
		fmt.Printf("A %s token is already stored (%s). Replace it? (y/N): ", service, credentials.Mask(existing.Token))
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
			return nil
		}
	}

	fmt.Printf("%s token: ", service)
	token, err := readPassword()
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}
	if token == "" {
		return errors.New("token cannot be empty")
	}

	if err := manager.Store(service, token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	ui.PrintSuccess(fmt.Sprintf("Stored %s token %s", service, credentials.Mask(token)))
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	manager, err := credentials.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	for _, service := range credentials.Services {
		secret, err := manager.Retrieve(service)
		if err != nil {
			ui.PrintWarning(fmt.Sprintf("%-8s not configured", service))
			continue
		}
		detail := credentials.Mask(secret.Token)
		if !secret.LastModified.IsZero() {
			detail += ", updated " + secret.LastModified.Format("2006-01-02 15:04")
		}
		ui.PrintInfo(fmt.Sprintf("%-8s", service), detail)
	}
	return nil
}

func runAuthRemove(cmd *cobra.Command, args []string) error {
	service, err := serviceArg(args[0])
	if err != nil {
		return err
	}
	manager, err := credentials.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	if err := manager.Delete(service); err != nil {
		if errors.Is(err, credentials.ErrCredentialsNotFound) {
			ui.PrintWarning("No stored token for " + service)
			return nil
		}
		return fmt.Errorf("failed to remove token: %w", err)
	}
	ui.PrintSuccess("Removed " + service + " token")
	return nil
}

// readPassword reads a line without echo when stdin is a terminal
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		password, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(password)), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
