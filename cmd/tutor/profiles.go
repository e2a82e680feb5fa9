package main

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// ProfilesConfig holds named identities and tracks which one is active.
type ProfilesConfig struct {
	Active   string             `toml:"active"`
	Profiles map[string]Profile `toml:"profiles"`
}

// Profile is a named identity the CLI acts as.
type Profile struct {
	ID        string `toml:"id"`
	Workspace string `toml:"workspace,omitempty"`
}

func profilesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "state", "tutorsheets")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "profiles.toml"), nil
}

func loadProfiles() (ProfilesConfig, error) {
	path, err := profilesPath()
	if err != nil {
		return ProfilesConfig{}, err
	}
	var cfg ProfilesConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if os.IsNotExist(err) {
			return ProfilesConfig{Profiles: map[string]Profile{}}, nil
		}
		return ProfilesConfig{}, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	return cfg, nil
}

func saveProfiles(cfg ProfilesConfig) error {
	path, err := profilesPath()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Active profile, loaded once per process.
var (
	profileOnce   sync.Once
	activeProfile Profile
)

func loadActiveProfile() Profile {
	profileOnce.Do(func() {
		cfg, err := loadProfiles()
		if err != nil || cfg.Active == "" {
			return
		}
		activeProfile = cfg.Profiles[cfg.Active]
	})
	return activeProfile
}

func defaultIdentity() string {
	if id := os.Getenv("TUTOR_AS"); id != "" {
		return id
	}
	return loadActiveProfile().ID
}
