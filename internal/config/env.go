package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig      = "CLOUDVFS_CONFIG"
	EnvAccount     = "CLOUDVFS_ACCOUNT"
	EnvAccessToken = "CLOUDVFS_ACCESS_TOKEN"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // CLOUDVFS_CONFIG: override config file path
	Account     string // CLOUDVFS_ACCOUNT: active account name
	AccessToken string // CLOUDVFS_ACCESS_TOKEN: token for the active account
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		Account:     os.Getenv(EnvAccount),
		AccessToken: os.Getenv(EnvAccessToken),
	}
}
