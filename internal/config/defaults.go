package config

// Default values for configuration options. These are layer 0 of the
// override chain.
const (
	defaultChunkSize      = "3200KiB" // 10 x 320 KiB
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"
	defaultUserAgent      = "cloudvfs"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		Accounts: make(map[string]Account),
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
			UserAgent:      defaultUserAgent,
		},
		Transfers: TransfersConfig{
			ChunkSize: defaultChunkSize,
		},
	}
}
