package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/zhubert/plural-client/paths"
)

// Profile is one named server endpoint in profiles.yaml
type Profile struct {
	URL   string `yaml:"url"`
	Debug bool   `yaml:"debug,omitempty"`
}

// Profiles is the parsed profiles.yaml:
//
//	profiles:
//	  staging:
//	    url: https://plans-staging.example.com
//	    debug: true
//	  prod:
//	    url: https://plans.example.com
type Profiles struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// LoadProfiles reads and parses profiles.yaml.
// Returns nil, nil if the file does not exist.
func LoadProfiles() (*Profiles, error) {
	fp, err := paths.ProfilesFilePath()
	if err != nil {
		return nil, err
	}
	return loadProfilesFrom(fp)
}

func loadProfilesFrom(fp string) (*Profiles, error) {
	data, err := os.ReadFile(fp)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}

	var p Profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profiles: %w", err)
	}

	for name, profile := range p.Profiles {
		if err := validateProfileURL(profile.URL); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
	}

	return &p, nil
}

func validateProfileURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("missing url")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url: %s", raw)
	}
	return nil
}

// Get returns the named profile
func (p *Profiles) Get(name string) (Profile, bool) {
	if p == nil {
		return Profile{}, false
	}
	profile, ok := p.Profiles[name]
	return profile, ok
}

// Names returns all profile names, sorted
func (p *Profiles) Names() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.Profiles))
	for name := range p.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveServer determines the effective server URL and debug flag: the
// active profile when one is selected, the plain server URL otherwise.
func ResolveServer(cfg *Config, profiles *Profiles) (string, bool, error) {
	if name := cfg.GetProfile(); name != "" {
		profile, ok := profiles.Get(name)
		if !ok {
			return "", false, fmt.Errorf("unknown profile: %s", name)
		}
		return profile.URL, profile.Debug || cfg.GetDebug(), nil
	}

	u := cfg.GetServerURL()
	if u == "" {
		return "", false, fmt.Errorf("no server configured: set server_url or select a profile")
	}
	return u, cfg.GetDebug(), nil
}
