package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igarchiver/pkg/auth"
	"igarchiver/pkg/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Instagram session credentials",
	Long: `Manage the Instagram session cookies igarchiver uses.

Credentials are stored in the system keychain when one is available and in
an encrypted file otherwise. IGARCHIVER_SESSION_ID and IGARCHIVER_CSRF_TOKEN
are read as a fallback.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store the session cookies of an Instagram account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove stored credentials",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var switchCmd = &cobra.Command{
	Use:   "switch [username]",
	Short: "Choose the account used when --account is not given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSwitch,
}

var logoutAll bool

func init() {
	logoutCmd.Flags().BoolVar(&logoutAll, "all", false, "remove every stored account")

	authCmd.AddCommand(loginCmd, logoutCmd, listCmd, switchCmd)
	rootCmd.AddCommand(authCmd)
}

// prompter reads answers from stdin, hiding secrets on a terminal
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout()}
}

func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	answer, err := p.in.ReadString('\n')
	if err != nil && answer == "" {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

func (p *prompter) confirm(question string) bool {
	answer, err := p.ask(question + " (y/N): ")
	return err == nil && strings.HasPrefix(strings.ToLower(answer), "y")
}

func (p *prompter) secret(question string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return p.ask(question)
	}
	fmt.Fprint(p.out, question)
	value, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(value)), nil
}

// choose prints a numbered menu of accounts and returns the chosen one
func (p *prompter) choose(accounts []*auth.Account) (*auth.Account, error) {
	for i, account := range accounts {
		fmt.Fprintf(p.out, "  %d. %s\n", i+1, account.Username)
	}
	answer, err := p.ask("Choice: ")
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(accounts) {
		return nil, fmt.Errorf("invalid choice %q", answer)
	}
	return accounts[n-1], nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	p := newPrompter(cmd)
	auth.ShowCookieExtractionGuide(p.out)

	username := ""
	if len(args) > 0 {
		username = args[0]
	} else if username, err = p.ask("Instagram username: "); err != nil {
		return err
	}
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		return fmt.Errorf("username is required")
	}

	if existing, _ := manager.Retrieve(username); existing != nil && existing.Username == username {
		if !p.confirm(fmt.Sprintf("Account '%s' already exists. Update it?", username)) {
			return nil
		}
	}

	sessionID, err := p.secret("sessionid cookie value: ")
	if err != nil {
		return err
	}
	if err := auth.ValidateSessionID(sessionID); err != nil {
		return err
	}

	csrfToken, err := p.secret("csrftoken cookie value: ")
	if err != nil {
		return err
	}
	if err := auth.ValidateCSRFToken(csrfToken); err != nil {
		return err
	}

	userAgent, _ := p.ask("User agent (Enter for default): ")

	account := &auth.Account{
		Username:  username,
		SessionID: sessionID,
		CSRFToken: csrfToken,
		UserAgent: userAgent,
	}
	if err := manager.Store(account); err != nil {
		return err
	}

	if manager.Default() == "" {
		if err := manager.SetDefault(username); err != nil {
			ui.PrintWarning("Could not make the account the default", err)
		}
	}

	masked := auth.SanitizeAccount(account)
	ui.PrintSuccess("Credentials stored for " + username)
	ui.PrintInfo("Session ID", masked.SessionID)
	ui.PrintInfo("CSRF token", masked.CSRFToken)
	fmt.Fprintln(ui.Output, "\nArchive a profile with:  igarchiver <instagram_username>")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	p := newPrompter(cmd)

	if logoutAll {
		if !p.confirm("Remove ALL stored accounts?") {
			return nil
		}
		if err := manager.DeleteAll(); err != nil {
			return err
		}
		ui.PrintSuccess("All accounts removed")
		return nil
	}

	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		accounts, err := manager.List()
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			ui.PrintWarning("No stored accounts")
			return nil
		}
		fmt.Fprintln(p.out, "Select the account to remove:")
		account, err := p.choose(accounts)
		if err != nil {
			return err
		}
		username = account.Username
	}

	if err := manager.Delete(username); err != nil {
		return err
	}
	ui.PrintSuccess("Account removed: " + username)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "use 'igarchiver auth login' to add one")
		return nil
	}

	current := manager.Default()
	out := cmd.OutOrStdout()
	for _, account := range accounts {
		a := auth.SanitizeAccount(account)
		marker := " "
		if a.Username == current {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, ui.Cyan(a.Username))
		fmt.Fprintf(out, "    session id: %s\n", a.SessionID)
		fmt.Fprintf(out, "    csrf token: %s\n", a.CSRFToken)
		if a.UserAgent != "" {
			fmt.Fprintf(out, "    user agent: %s\n", a.UserAgent)
		}
		if !a.LastModified.IsZero() {
			fmt.Fprintf(out, "    modified:   %s\n", a.LastModified.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}

func runSwitch(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		accounts, err := manager.List()
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			ui.PrintWarning("No stored accounts")
			return nil
		}
		p := newPrompter(cmd)
		fmt.Fprintln(p.out, "Select the default account:")
		account, err := p.choose(accounts)
		if err != nil {
			return err
		}
		username = account.Username
	}

	if err := manager.SetDefault(username); err != nil {
		return err
	}
	ui.PrintSuccess("Default account: " + username)
	return nil
}
