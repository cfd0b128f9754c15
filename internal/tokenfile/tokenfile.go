// Package tokenfile reads and writes saved account tokens. A token file
// holds one account's OAuth2 token plus small string metadata (the account
// kind, who saved it) so the CLI can list accounts without a network call.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the tokens directory.
const DirPerms = 0o700

// Metadata keys written by Rotate.
const (
	MetaKind    = "kind"
	MetaSavedAt = "saved_at"
)

var (
	// ErrNoToken is returned by AccessToken when no token file exists.
	ErrNoToken = errors.New("tokenfile: no saved token")
	// ErrExpired is returned by AccessToken for an expired token that
	// cannot be refreshed.
	ErrExpired = errors.New("tokenfile: saved token has expired")
)

// File is the on-disk format for token files.
type File struct {
	Token *oauth2.Token     `json:"token"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Load reads a token file. Returns (nil, nil) if the file does not exist.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Token == nil {
		return nil, fmt.Errorf("tokenfile: %s missing token field", path)
	}

	return &tf, nil
}

// AccessToken returns the bearer token saved at path. A token with a past
// expiry and no refresh token is rejected; tokens without an expiry never
// expire.
func AccessToken(path string, now time.Time) (string, error) {
	tf, err := Load(path)
	if err != nil {
		return "", err
	}

	if tf == nil || tf.Token.AccessToken == "" {
		return "", fmt.Errorf("%w at %s", ErrNoToken, path)
	}

	if !tf.Token.Expiry.IsZero() && now.After(tf.Token.Expiry) && tf.Token.RefreshToken == "" {
		return "", fmt.Errorf("%w (expired %s)", ErrExpired, tf.Token.Expiry.Format(time.RFC3339))
	}

	return tf.Token.AccessToken, nil
}

// Save writes a token file to disk atomically (write-to-temp + rename)
// with 0600 permissions. Never logs token values.
func Save(path string, tf *File) error {
	if tf == nil || tf.Token == nil {
		return errors.New("tokenfile: refusing to save a file without a token")
	}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Rotate stores accessToken at path, keeping any existing metadata and
// merging meta over it. The previous refresh token is dropped because it
// belongs to the old grant.
func Rotate(path, accessToken string, expiry time.Time, meta map[string]string) error {
	if accessToken == "" {
		return errors.New("tokenfile: access token is empty")
	}

	existing, err := Load(path)
	if err != nil {
		return err
	}

	merged := make(map[string]string, len(meta)+1)
	if existing != nil {
		maps.Copy(merged, existing.Meta)
	}

	maps.Copy(merged, meta)

	return Save(path, &File{
		Token: &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer", Expiry: expiry},
		Meta:  merged,
	})
}

// Remove deletes the token file at path. It reports false when there was
// nothing to remove.
func Remove(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return true, nil
}
