package profile

import (
	"fmt"
	"io"
	"strings"
)

// WriteCookieGuide prints how to copy a Cookie header out of a browser
func WriteCookieGuide(w io.Writer, site string) {
	if site == "" {
		site = "the site"
	}
	rule := strings.Repeat("=", 72)

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "COPYING A BROWSER SESSION INTO A PROFILE")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "1. Open %s in your browser and log in if needed.\n", site)
	fmt.Fprintln(w, "2. Open Developer Tools (F12, or Cmd+Option+I on macOS).")
	fmt.Fprintln(w, "3. Go to the Network tab and reload the page.")
	fmt.Fprintln(w, "4. Click the first document request and open its Request Headers.")
	fmt.Fprintln(w, "5. Copy the whole value of the 'Cookie:' line, and optionally 'User-Agent:'.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Then run:")
	fmt.Fprintln(w, "   imgsniff profile set <name> --user-agent '<ua>' --header 'Key=Value'")
	fmt.Fprintln(w, "and paste the cookie value at the prompt (input is hidden).")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Cookies grant the same access as your logged-in browser. Profiles are")
	fmt.Fprintln(w, "kept in the system keychain or an encrypted file, never in plain text.")
	fmt.Fprintln(w, rule)
}
