package config

const (
	defaultConfigPath       = "~/.config/loadboard/config.toml"
	defaultStateDir         = "~/.local/share/loadboard"
	defaultLogDir           = "~/.local/share/loadboard/logs"
	defaultAPIBind          = "127.0.0.1:7491"
	defaultEventBuffer      = 512
	defaultResyncIntervalMS = 8000
	defaultDebounceMS       = 300
	defaultGraceMS          = 750
	defaultPendingTTLMS     = 15000
	defaultBurstThreshold   = 8
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Server: Server{
			APIBind:     defaultAPIBind,
			EventBuffer: defaultEventBuffer,
		},
		Sync: Sync{
			ResyncIntervalMS: defaultResyncIntervalMS,
			DebounceMS:       defaultDebounceMS,
			GraceMS:          defaultGraceMS,
			PendingTTLMS:     defaultPendingTTLMS,
			BurstThreshold:   defaultBurstThreshold,
			TrackedStates:    []string{"in_preparation"},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
