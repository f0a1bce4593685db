package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver:      DriverSQLite,
			Path:        "~/.config/synapse",
			SQLiteFile:  "synapse.db",
			UploadsDir:  "uploads",
			PostgresURL: "",
		},
		Capture: CaptureConfig{
			Workers:             4,
			QueueSize:           64,
			FetchTimeoutSeconds: 5,
			UserAgent:           "",
			MaxBodyBytes:        10485760,
			MaxContentChars:     10000,
			HistorySize:         256,
		},
		Classify: ClassifyConfig{
			VideoHosts: DefaultVideoHosts(),
			ShopHosts:  DefaultShopHosts(),
		},
		Server: ServerConfig{
			Host:                   "127.0.0.1",
			Port:                   8000,
			MaxUploadBytes:         33554432,
			ShutdownTimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File:   "",
		},
	}
}
