// Package testutil holds environment helpers for the live e2e suite. It
// depends only on stdlib so the e2e package, which drives the built binary
// and never imports internal/, can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AllowlistEnv names the comma-separated list of account names that the
// e2e suite may write to.
const AllowlistEnv = "CLOUDVFS_ALLOWED_TEST_ACCOUNTS"

// LoadDotEnv reads KEY=VALUE pairs from a .env file at envPath. A missing
// file is not an error. Variables already set in the environment win.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// CheckAllowlist reports an error unless the account named by accountEnv
// appears in AllowlistEnv. The suite creates and deletes real items, so an
// unlisted account must never be touched.
func CheckAllowlist(accountEnv string) (string, error) {
	allowlist := os.Getenv(AllowlistEnv)
	if allowlist == "" {
		return "", fmt.Errorf("%s not set (example: %s=e2e-dropbox,e2e-s3)", AllowlistEnv, AllowlistEnv)
	}

	account := os.Getenv(accountEnv)
	if account == "" {
		return "", fmt.Errorf("%s not set", accountEnv)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.TrimSpace(a) == account {
			return account, nil
		}
	}

	return "", fmt.Errorf("%s=%q is not in %s=%q", accountEnv, account, AllowlistEnv, allowlist)
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
