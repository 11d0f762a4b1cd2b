// Package profile stores per-site request identities (cookie header, user
// agent, extra headers) that the user captured from a logged-in browser.
// The values are opaque to imgsniff and are only replayed on requests.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"imgsniff/pkg/web"
)

// Profile is one named identity
type Profile struct {
	Name         string            `json:"name"`
	Cookie       string            `json:"cookie,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// FetchContext converts the profile into request state
func (p *Profile) FetchContext() web.FetchContext {
	return web.NewFetchContext(p.UserAgent, "", web.ParseCookieHeader(p.Cookie), p.Headers)
}

// Store is the interface for storing and retrieving profiles
type Store interface {
	Store(p *Profile) error
	Retrieve(name string) (*Profile, error)
	List() ([]*Profile, error)
	Delete(name string) error
	Exists(name string) bool
}

// Manager handles profile storage with fallback mechanisms
type Manager struct {
	stores []Store
}

// NewManager tries the system keyring first, then an encrypted file in the
// config directory, then the environment.
func NewManager() (*Manager, error) {
	var stores []Store

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "profiles.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores builds a manager over explicit stores, in priority
// order.
func NewManagerWithStores(stores ...Store) *Manager {
	return &Manager{stores: stores}
}

// Store saves the profile in the first store that accepts it
func (m *Manager) Store(p *Profile) error {
	if p == nil || p.Name == "" {
		return errors.New("profile name is required")
	}
	if p.Cookie == "" && p.UserAgent == "" && len(p.Headers) == 0 {
		return errors.New("profile needs a cookie, user agent or header")
	}

	p.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(p)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store profile: %w", lastErr)
	}
	return errors.New("no available profile stores")
}

// Retrieve gets the profile from the first store that has it
func (m *Manager) Retrieve(name string) (*Profile, error) {
	for _, store := range m.stores {
		if p, err := store.Retrieve(name); err == nil && p != nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
}

// List merges all stores, keeping the most recently modified copy of each
// name, sorted by name.
func (m *Manager) List() ([]*Profile, error) {
	byName := make(map[string]*Profile)

	for _, store := range m.stores {
		profiles, err := store.List()
		if err != nil {
			continue
		}
		for _, p := range profiles {
			if existing, ok := byName[p.Name]; !ok || p.LastModified.After(existing.LastModified) {
				byName[p.Name] = p
			}
		}
	}

	result := make([]*Profile, 0, len(byName))
	for _, p := range byName {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Delete removes the profile from every store that has it
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil && !errors.Is(lastErr, ErrProfileNotFound) && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete profile: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return nil
}

func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "imgsniff")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "imgsniff")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "imgsniff")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "imgsniff")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// Sanitize returns a copy with cookie and header values masked
func Sanitize(p *Profile) *Profile {
	if p == nil {
		return nil
	}

	out := &Profile{
		Name:         p.Name,
		Cookie:       maskCookie(p.Cookie),
		UserAgent:    p.UserAgent,
		LastModified: p.LastModified,
	}
	if len(p.Headers) > 0 {
		out.Headers = make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			out.Headers[k] = maskString(v)
		}
	}
	return out
}

// maskCookie keeps cookie names and masks their values
func maskCookie(header string) string {
	cookies := web.ParseCookieHeader(header)
	if len(cookies) == 0 {
		return maskString(header)
	}
	var out string
	for i, c := range cookies {
		if i > 0 {
			out += "; "
		}
		out += c.Name + "=" + maskString(c.Value)
	}
	return out
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

var (
	ErrProfileNotFound  = errors.New("profile not found")
	ErrInvalidProfile   = errors.New("invalid profile")
	ErrStoreUnavailable = errors.New("profile store unavailable")
)
