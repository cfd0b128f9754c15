package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// ResolvePath picks the config file path: CLI > env > platform default.
func ResolvePath(env EnvOverrides, cli CLIOverrides) string {
	if cli.ConfigPath != "" {
		return cli.ConfigPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return DefaultConfigPath()
}

// AccountNames returns the configured account names, sorted.
func (c *Config) AccountNames() []string {
	names := make([]string, 0, len(c.Accounts))
	for name := range c.Accounts {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// SelectAccount picks the active account name: explicit > default_account
// > the only configured account.
func (c *Config) SelectAccount(explicit string) (string, error) {
	name := explicit
	if name == "" {
		name = c.DefaultAccount
	}

	if name == "" {
		switch len(c.Accounts) {
		case 0:
			return "", errors.New("no accounts configured")
		case 1:
			return c.AccountNames()[0], nil
		default:
			return "", fmt.Errorf("multiple accounts configured (%d); select one with --account or default_account",
				len(c.Accounts))
		}
	}

	if _, ok := c.Accounts[name]; !ok {
		if suggestion := closestMatch(name, c.AccountNames()); suggestion != "" {
			return "", fmt.Errorf("account %q not found, did you mean %q?", name, suggestion)
		}

		return "", fmt.Errorf("account %q not found", name)
	}

	return name, nil
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns the selected account merged with the global sections.
func Resolve(env EnvOverrides, cli CLIOverrides) (*ResolvedAccount, error) {
	cfgPath := ResolvePath(env, cli)

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	explicit := cli.Account
	if explicit == "" {
		explicit = env.Account
	}

	name, err := cfg.SelectAccount(explicit)
	if err != nil {
		return nil, err
	}

	resolved, err := cfg.ResolveAccount(name)
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(cfgPath); statErr == nil {
		resolved.ConfigPath = cfgPath
	}

	if env.AccessToken != "" {
		resolved.AccessToken = env.AccessToken
	}

	return resolved, nil
}

// ResolveAccount merges the named account with the global sections.
func (c *Config) ResolveAccount(name string) (*ResolvedAccount, error) {
	acct, ok := c.Accounts[name]
	if !ok {
		return nil, fmt.Errorf("account %q not found", name)
	}

	chunk, err := ParseSize(c.Transfers.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("chunk_size: %w", err)
	}

	connect, err := time.ParseDuration(c.Network.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect_timeout: %w", err)
	}

	data, err := time.ParseDuration(c.Network.DataTimeout)
	if err != nil {
		return nil, fmt.Errorf("data_timeout: %w", err)
	}

	return &ResolvedAccount{
		Name:           name,
		Account:        acct,
		Logging:        c.Logging,
		UserAgent:      c.Network.UserAgent,
		ChunkSize:      chunk,
		ConnectTimeout: connect,
		DataTimeout:    data,
	}, nil
}
