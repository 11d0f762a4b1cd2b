package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"imgsniff/pkg/profile"
	"imgsniff/pkg/ui"
	"imgsniff/pkg/web"
)

func newProfileCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage stored request profiles",
		Long: `Manage named request profiles: a Cookie header, a User-Agent and extra
headers copied from a logged-in browser, replayed with --profile.

Profiles are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (IMGSNIFF_COOKIE, IMGSNIFF_HEADERS, IMGSNIFF_USER_AGENT)

Never share your profiles or config files!`,
	}

	cmd.AddCommand(newProfileSetCmd())
	cmd.AddCommand(newProfileListCmd())
	cmd.AddCommand(newProfileShowCmd())
	cmd.AddCommand(newProfileDeleteCmd())
	cmd.AddCommand(newProfileGuideCmd())
	return cmd
}

type profileSetOptions struct {
	userAgent   string
	headers     []string
	cookieStdin bool
}

func newProfileSetCmd() *cobra.Command {
	o := &profileSetOptions{}

	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Create or replace a profile",
		Long: `Create or replace a profile. The Cookie header is read from the terminal
without echo, or from stdin with --cookie-stdin.`,
		Example: `  # Prompt for the cookie
  imgsniff profile set work --user-agent 'Mozilla/5.0 ...'

  # Pipe the cookie in and add a header
  pbpaste | imgsniff profile set work --cookie-stdin -H 'X-Requested-With=XMLHttpRequest'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := profile.NewManager()
			if err != nil {
				return fmt.Errorf("failed to open profile store: %w", err)
			}

			var cookie string
			if o.cookieStdin {
				cookie, err = readLine(cmd.InOrStdin())
			} else {
				fmt.Fprint(ui.Output, "Cookie header value (hidden): ")
				cookie, err = readSecret()
			}
			if err != nil {
				return fmt.Errorf("failed to read cookie: %w", err)
			}

			p, err := newProfile(args[0], cookie, o)
			if err != nil {
				return err
			}
			if err := manager.Store(p); err != nil {
				return fmt.Errorf("failed to store profile: %w", err)
			}

			ui.PrintSuccess("Profile saved: " + p.Name)
			printProfile(ui.Output, profile.Sanitize(p))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.userAgent, "user-agent", "", "User-Agent to send with this profile")
	f.StringArrayVarP(&o.headers, "header", "H", nil, "extra request header as Key=Value (repeatable)")
	f.BoolVar(&o.cookieStdin, "cookie-stdin", false, "read the Cookie header from stdin")
	return cmd
}

// newProfile validates the input and builds a profile from it
func newProfile(name, cookie string, o *profileSetOptions) (*profile.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", profile.ErrInvalidProfile)
	}
	cookie = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cookie), "Cookie:"))

	headers := web.ParseHeaderPairs(o.headers)
	if len(headers) != len(o.headers) {
		return nil, fmt.Errorf("%w: headers must be Key=Value", profile.ErrInvalidProfile)
	}
	if cookie == "" && o.userAgent == "" && len(headers) == 0 {
		return nil, fmt.Errorf("%w: set at least a cookie, user agent or header", profile.ErrInvalidProfile)
	}

	return &profile.Profile{
		Name:         name,
		Cookie:       cookie,
		UserAgent:    strings.TrimSpace(o.userAgent),
		Headers:      headers,
		LastModified: time.Now(),
	}, nil
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := profile.NewManager()
			if err != nil {
				return fmt.Errorf("failed to open profile store: %w", err)
			}
			profiles, err := manager.List()
			if err != nil {
				return fmt.Errorf("failed to list profiles: %w", err)
			}

			if len(profiles) == 0 {
				ui.PrintInfo("No stored profiles", "use 'imgsniff profile set <name>' to add one")
				return nil
			}

			ui.PrintHighlight("Stored Profiles")
			fmt.Fprintln(ui.Output)
			for i, p := range profiles {
				fmt.Fprintf(ui.Output, "%d. ", i+1)
				printProfile(ui.Output, profile.Sanitize(p))
				fmt.Fprintln(ui.Output)
			}
			return nil
		},
	}
}

func newProfileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a profile with its secrets masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := profile.NewManager()
			if err != nil {
				return fmt.Errorf("failed to open profile store: %w", err)
			}
			p, err := manager.Retrieve(args[0])
			if err != nil {
				return fmt.Errorf("profile %q: %w", args[0], err)
			}
			printProfile(ui.Output, profile.Sanitize(p))
			return nil
		},
	}
}

func newProfileDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a stored profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !yes && !confirm(cmd.InOrStdin(), fmt.Sprintf("Remove profile '%s'? (y/N): ", name)) {
				return nil
			}

			manager, err := profile.NewManager()
			if err != nil {
				return fmt.Errorf("failed to open profile store: %w", err)
			}
			if err := manager.Delete(name); err != nil {
				return fmt.Errorf("failed to remove profile: %w", err)
			}
			ui.PrintSuccess("Profile removed: " + name)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newProfileGuideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "guide [site]",
		Short: "Explain how to copy a browser session into a profile",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var site string
			if len(args) > 0 {
				site = args[0]
			}
			profile.WriteCookieGuide(cmd.OutOrStdout(), site)
		},
	}
}

func printProfile(w io.Writer, p *profile.Profile) {
	fmt.Fprintf(w, "Name: %s\n", p.Name)
	if p.Cookie != "" {
		fmt.Fprintf(w, "   Cookie: %s\n", p.Cookie)
	}
	if p.UserAgent != "" {
		fmt.Fprintf(w, "   User Agent: %s\n", p.UserAgent)
	}
	keys := make([]string, 0, len(p.Headers))
	for k := range p.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "   Header: %s=%s\n", k, p.Headers[k])
	}
	if !p.LastModified.IsZero() {
		fmt.Fprintf(w, "   Last Modified: %s\n", p.LastModified.Format("2006-01-02 15:04:05"))
	}
}

func confirm(r io.Reader, prompt string) bool {
	fmt.Fprint(ui.Output, prompt)
	answer, _ := readLine(r)
	return strings.HasPrefix(strings.ToLower(answer), "y")
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads from the terminal without echo, falling back to a plain
// line read when stdin is not a terminal
func readSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(ui.Output)
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}
	return readLine(os.Stdin)
}
