package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Validation range constants.
const (
	chunkAlignBytes   = 327680     // 320 KiB alignment for upload chunks
	minChunkBytes     = 327680     // one alignment unit
	maxChunkBytes     = 62_914_560 // 60 MiB
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
)

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"auto", "text", "json"}
)

// Validate checks all configuration values and returns all errors found,
// so users see a complete report and can fix everything in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAccounts(cfg)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateChunkSize(cfg.Transfers.ChunkSize)...)

	return errors.Join(errs...)
}

func validateAccounts(cfg *Config) []error {
	var errs []error

	if cfg.DefaultAccount != "" {
		if _, ok := cfg.Accounts[cfg.DefaultAccount]; !ok {
			errs = append(errs, fmt.Errorf("default_account: account %q is not defined", cfg.DefaultAccount))
		}
	}

	for _, name := range cfg.AccountNames() {
		if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
			errs = append(errs, fmt.Errorf("account %q: name must not contain path separators or start with a dot", name))
		}

		for _, err := range validateAccount(cfg.Accounts[name]) {
			errs = append(errs, fmt.Errorf("account %q: %w", name, err))
		}
	}

	return errs
}

// validateAccount checks the per-kind required fields.
func validateAccount(a Account) []error {
	var errs []error

	if !slices.Contains(Kinds, a.Kind) {
		if a.Kind == "" {
			return []error{fmt.Errorf("kind: required, one of %s", strings.Join(Kinds, ", "))}
		}

		msg := fmt.Sprintf("kind: unknown kind %q, must be one of %s", a.Kind, strings.Join(Kinds, ", "))
		if suggestion := closestMatch(a.Kind, Kinds); suggestion != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
		}

		return []error{errors.New(msg)}
	}

	if a.AccessToken != "" && a.TokenFile != "" {
		errs = append(errs, errors.New("access_token and token_file are mutually exclusive"))
	}

	switch a.Kind {
	case KindS3:
		if a.Bucket == "" {
			errs = append(errs, errors.New("bucket: required for s3 accounts"))
		}

		if a.AccessToken != "" && strings.Count(a.AccessToken, ":") < 1 {
			errs = append(errs, errors.New("access_token: s3 credentials must be ACCESS_KEY:SECRET_KEY[:SESSION_TOKEN]"))
		}
	case KindBox:
		if a.ClientID == "" || a.ClientSecret == "" {
			errs = append(errs, errors.New("client_id and client_secret: required for box accounts"))
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !slices.Contains(validLogLevels, l.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level: must be one of %s, got %q",
			strings.Join(validLogLevels, ", "), l.LogLevel))
	}

	if !slices.Contains(validLogFormats, l.LogFormat) {
		errs = append(errs, fmt.Errorf("log_format: must be one of %s, got %q",
			strings.Join(validLogFormats, ", "), l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDuration("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDuration("data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

func validateDuration(key, value string, floor time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", key, value, err)}
	}

	if d < floor {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", key, floor, d)}
	}

	return nil
}

func validateChunkSize(s string) []error {
	bytes, err := ParseSize(s)
	if err != nil {
		return []error{fmt.Errorf("chunk_size: %w", err)}
	}

	var errs []error

	if bytes%chunkAlignBytes != 0 {
		errs = append(errs, fmt.Errorf("chunk_size: must be a multiple of 320 KiB, got %d bytes", bytes))
	}

	if bytes < minChunkBytes || bytes > maxChunkBytes {
		errs = append(errs, fmt.Errorf("chunk_size: must be between 320KiB and 60MiB, got %s", s))
	}

	return errs
}
