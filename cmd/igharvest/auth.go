package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igharvest/pkg/auth"
	"igharvest/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the login account",
	Long: `Manage the Instagram account used when a profile page is behind a login wall.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file (argon2id key, AES-GCM)
  - Environment variables IGHARVEST_LOGIN_USERNAME / IGHARVEST_LOGIN_PASSWORD (read-only)

Use a dedicated account; automated logins can get an account checkpointed.`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store login credentials securely",
	Example: `  # Interactive login
  igharvest auth login

  # Login with username
  igharvest auth login myaccount`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove stored credentials",
	Long: `Remove stored credentials.

If no username is provided, you will be shown a list of stored accounts
to choose from.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

// accountManager is the part of auth.Manager the commands use
type accountManager interface {
	Store(account *auth.Account) error
	Retrieve(username string) (*auth.Account, error)
	List() ([]*auth.Account, error)
	Delete(username string) error
}

// prompter reads answers line by line; password input skips echo on a terminal
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

func stdinPrompter() *prompter {
	return &prompter{in: bufio.NewReader(os.Stdin), out: os.Stdout, fd: int(os.Stdin.Fd())}
}

func (p *prompter) ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *prompter) confirm(label string) bool {
	answer, _ := p.ask(label + " (y/N): ")
	return strings.HasPrefix(strings.ToLower(answer), "y")
}

func (p *prompter) secret(label string) (string, error) {
	if p.fd >= 0 && term.IsTerminal(p.fd) {
		fmt.Fprint(p.out, label)
		raw, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err == nil {
			return string(raw), nil
		}
	}
	return p.ask(label)
}

// choose lists items and returns the picked index, or -1 for cancel
func (p *prompter) choose(title string, items []string) (int, error) {
	fmt.Fprintln(p.out, title)
	for i, item := range items {
		fmt.Fprintf(p.out, "  %d. %s\n", i+1, item)
	}
	answer, err := p.ask("  0. Cancel\n\nChoice: ")
	if err != nil {
		return -1, err
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 0 || n > len(items) {
		return -1, fmt.Errorf("invalid choice %q", answer)
	}
	return n - 1, nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	var username string
	if len(args) > 0 {
		username = args[0]
	}
	saved, err := loginAccount(stdinPrompter(), manager, username)
	if err != nil || saved == "" {
		return err
	}

	ui.PrintSuccess("Account saved: " + saved)
	if auth.IsKeyringAvailable() {
		ui.PrintInfo("Stored in", "system keychain")
	} else {
		ui.PrintInfo("Stored in", "encrypted file")
	}
	if accounts, _ := manager.List(); len(accounts) > 1 {
		ui.PrintInfo("Tip", "select it with 'igharvest scrape <profile> --account "+saved+"'")
	}
	return nil
}

// loginAccount asks for whatever is missing and stores the account. It
// returns the saved username, or "" when the user declined to overwrite.
func loginAccount(p *prompter, accounts accountManager, username string) (string, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		answer, err := p.ask("Instagram username: ")
		if err != nil {
			return "", fmt.Errorf("failed to read username: %w", err)
		}
		username = strings.TrimPrefix(answer, "@")
	}
	if username == "" {
		return "", errors.New("username is required")
	}

	if existing, _ := accounts.Retrieve(username); existing != nil {
		if !p.confirm(fmt.Sprintf("Account '%s' already exists. Update credentials?", username)) {
			return "", nil
		}
	}

	password, err := p.secret("Password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return "", errors.New("password is required")
	}

	if err := accounts.Store(&auth.Account{Username: username, Password: password, LastModified: time.Now()}); err != nil {
		return "", fmt.Errorf("failed to store credentials: %w", err)
	}
	return username, nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	var username string
	if len(args) > 0 {
		username = args[0]
	}
	removed, err := logoutAccount(stdinPrompter(), manager, username)
	if err != nil {
		return err
	}
	if removed != "" {
		ui.PrintSuccess("Account removed: " + removed)
	}
	return nil
}

// logoutAccount removes username, or one picked from a menu when it is empty
func logoutAccount(p *prompter, accounts accountManager, username string) (string, error) {
	if username == "" {
		stored, err := accounts.List()
		if err != nil || len(stored) == 0 {
			ui.PrintWarning("No stored accounts found")
			return "", nil
		}
		names := make([]string, len(stored))
		for i, a := range stored {
			names[i] = a.Username
		}
		idx, err := p.choose("Select account to remove:", names)
		if err != nil || idx < 0 {
			return "", err
		}
		username = names[idx]
	}

	if err := accounts.Delete(username); err != nil {
		return "", fmt.Errorf("failed to remove account: %w", err)
	}
	return username, nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'igharvest auth login' to add an account")
		return nil
	}
	ui.PrintTable([]string{"USERNAME", "PASSWORD", "LAST MODIFIED"}, accountRows(accounts))
	return nil
}

// accountRows masks passwords and marks the default (newest) account
func accountRows(accounts []*auth.Account) [][]string {
	rows := make([][]string, 0, len(accounts))
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		name := sanitized.Username
		if i == 0 {
			name += " (default)"
		}
		modified := "-"
		if !sanitized.LastModified.IsZero() {
			modified = sanitized.LastModified.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{name, sanitized.Password, modified})
	}
	return rows
}
