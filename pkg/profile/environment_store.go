package profile

import (
	"os"
	"strings"
	"time"

	"imgsniff/pkg/web"
)

// EnvironmentProfile is the name under which the environment profile is
// reported.
const EnvironmentProfile = "env"

// EnvironmentStore exposes IMGSNIFF_COOKIE, IMGSNIFF_USER_AGENT and
// IMGSNIFF_HEADERS ("Key=Value|Key=Value") as a read-only profile.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(p *Profile) error {
	return ErrStoreUnavailable
}

// Retrieve answers for any name, so the environment can stand in for a
// profile that was never saved.
func (e *EnvironmentStore) Retrieve(name string) (*Profile, error) {
	cookie := os.Getenv("IMGSNIFF_COOKIE")
	headers := os.Getenv("IMGSNIFF_HEADERS")
	if cookie == "" && headers == "" {
		return nil, ErrProfileNotFound
	}
	if name == "" {
		name = EnvironmentProfile
	}

	p := &Profile{
		Name:         name,
		Cookie:       cookie,
		UserAgent:    os.Getenv("IMGSNIFF_USER_AGENT"),
		LastModified: time.Now(),
	}
	if headers != "" {
		p.Headers = web.ParseHeaderPairs(strings.Split(headers, "|"))
	}
	return p, nil
}

func (e *EnvironmentStore) List() ([]*Profile, error) {
	p, err := e.Retrieve("")
	if err != nil {
		return []*Profile{}, nil
	}
	return []*Profile{p}, nil
}

func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv("IMGSNIFF_COOKIE") != "" || os.Getenv("IMGSNIFF_HEADERS") != ""
}
