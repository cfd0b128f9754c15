// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for cloudvfs. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
// Each [account.<name>] section binds one storage back end; the global
// [logging], [network] and [transfers] sections apply to every account.
package config

import "time"

// Account kinds. Each selects one back-end adapter.
const (
	KindS3       = "s3"
	KindDropbox  = "dropbox"
	KindBox      = "box"
	KindGDrive   = "gdrive"
	KindOneDrive = "onedrive"
)

// Kinds lists every supported account kind in display order.
var Kinds = []string{KindS3, KindDropbox, KindBox, KindGDrive, KindOneDrive}

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	DefaultAccount string             `toml:"default_account"`
	Accounts       map[string]Account `toml:"account"`
	Logging        LoggingConfig      `toml:"logging"`
	Network        NetworkConfig      `toml:"network"`
	Transfers      TransfersConfig    `toml:"transfers"`
}

// Account is one [account.<name>] section. Fields that do not apply to the
// account's kind are ignored.
type Account struct {
	Kind string `toml:"kind"`

	// AccessToken is a bearer token, or "ACCESS_KEY:SECRET_KEY[:SESSION]"
	// for s3. TokenFile points at a saved token file instead.
	AccessToken string `toml:"access_token"`
	TokenFile   string `toml:"token_file"`

	// box
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`

	// s3
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path_style"`

	// onedrive
	DriveID string `toml:"drive_id"`

	// gdrive
	ForceResumableUpload bool `toml:"force_resumable_upload"`

	// BaseURL overrides the API endpoint for box, gdrive and onedrive.
	BaseURL string `toml:"base_url"`
}

// LoggingConfig controls log output: level and handler format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior shared by every adapter.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// TransfersConfig controls uploads. chunk_size applies to chunked upload
// sessions and must be a multiple of 320 KiB.
type TransfersConfig struct {
	ChunkSize string `toml:"chunk_size"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings.
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	Account    string // --account flag (empty = use default)
}

// ResolvedAccount is a fully resolved account: its section merged with the
// global sections, sizes and durations parsed.
type ResolvedAccount struct {
	Name string
	Account

	Logging        LoggingConfig
	UserAgent      string
	ChunkSize      int64
	ConnectTimeout time.Duration
	DataTimeout    time.Duration

	// ConfigPath is the file the account came from; empty when no file
	// existed.
	ConfigPath string
}
