package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/term"

	"github.com/mfme-labs/kapsel/internal/adapters/driven/config/file"
	"github.com/mfme-labs/kapsel/internal/adapters/driving/oauth"
	"github.com/mfme-labs/kapsel/internal/core/domain"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Drive account",
	Long: `Connects kapsel to a Google Drive account.

You need an OAuth client (client_id and client_secret) from the Google
Cloud console with the Drive API enabled. The client is stored in the
config file; the account token is stored next to it.

Examples:
  kapsel auth login
  kapsel auth status
  kapsel auth logout`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorise access to a Drive account",
	RunE:  runAuthLogin,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether an account is connected",
	RunE:  runAuthStatus,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored account token",
	RunE:  runAuthLogout,
}

// Flags for auth login.
var (
	authClientID     string
	authClientSecret string
	authNoBrowser    bool
)

func init() {
	authLoginCmd.Flags().StringVar(&authClientID, "client-id", "",
		"OAuth client ID (prompted when omitted)")
	authLoginCmd.Flags().StringVar(&authClientSecret, "client-secret", "",
		"OAuth client secret (prompted when omitted)")
	authLoginCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false,
		"Print the authorization URL instead of opening a browser")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)
	rootCmd.AddCommand(authCmd)
}

//nolint:errcheck // CLI interactive flow
func runAuthLogin(cmd *cobra.Command, _ []string) error {
	cfg := configStore.Config()
	reader := bufio.NewReader(cmd.InOrStdin())

	clientID := authClientID
	if clientID == "" {
		clientID = cfg.Google.ClientID
	}
	if clientID == "" {
		cmd.Print("OAuth client ID: ")
		input, _ := reader.ReadString('\n')
		clientID = strings.TrimSpace(input)
	}
	if clientID == "" {
		return errors.New("client ID is required")
	}

	clientSecret := authClientSecret
	if clientSecret == "" {
		clientSecret = cfg.Google.ClientSecret
	}
	if clientSecret == "" {
		clientSecret = promptSecret(cmd, "OAuth client secret: ")
	}
	if clientSecret == "" {
		return errors.New("client secret is required")
	}

	if err := configStore.Update(func(c *file.Config) {
		c.Google.ClientID = clientID
		c.Google.ClientSecret = clientSecret
	}); err != nil {
		return fmt.Errorf("saving client configuration: %w", err)
	}
	cfg = configStore.Config()

	// Local callback server receives the redirect with the code.
	state := oauth.GenerateState()
	server := oauth.NewCallbackServer(0, state)
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting callback server: %w", err)
	}
	defer server.Stop()

	oc := oauthConfig(cfg)
	oc.RedirectURL = server.RedirectURI()

	verifier := oauth.GenerateCodeVerifier()
	authURL := oc.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("code_challenge", oauth.GenerateCodeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	if authNoBrowser {
		cmd.Printf("Open this URL in a browser to authorise access:\n\n  %s\n\n", authURL)
	} else {
		cmd.Println("Opening browser to authorise access...")
		if err := oauth.OpenBrowser(authURL); err != nil {
			cmd.Printf("Could not open a browser. Open this URL manually:\n\n  %s\n\n", authURL)
		}
	}

	cmd.Println("Waiting for authorization...")
	code, err := server.WaitForCode(5 * time.Minute)
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	token, err := oc.Exchange(cmd.Context(), code,
		oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}

	if err := tokenStore.Save(token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	cmd.Println("Account connected. Uploads will now go to Drive.")
	return nil
}

// promptSecret reads a secret without echoing when stdin is a terminal.
//
//nolint:errcheck // CLI interactive flow
func promptSecret(cmd *cobra.Command, prompt string) string {
	cmd.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		cmd.Println()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(raw))
	}
	reader := bufio.NewReader(cmd.InOrStdin())
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	_, err := tokenStore.Load()
	switch {
	case errors.Is(err, domain.ErrNoAccount):
		cmd.Println("No account connected. Run 'kapsel auth login'.")
		return nil
	case err != nil:
		return fmt.Errorf("reading token: %w", err)
	}

	cmd.Println("Account connected.")
	if cloudReady {
		if err := syncEngine.Probe(cmd.Context()); err != nil {
			cmd.Printf("Probe failed: %v\n", err)
			return nil
		}
		cmd.Println("Drive reachable and authorised.")
	}
	return nil
}

func runAuthLogout(cmd *cobra.Command, _ []string) error {
	if err := tokenStore.Clear(); err != nil {
		return err
	}
	cmd.Println("Account token removed.")
	return nil
}
