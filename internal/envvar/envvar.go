package envvar

const (
	// TtsdEnv is the environment variable used to determine the environment
	TtsdEnv = "TTSD_ENV"

	// TtsdConfig is the environment variable used to locate the config file
	TtsdConfig = "TTSD_CONFIG"

	// TtsdLogLevel is the environment variable used to override the log level
	TtsdLogLevel = "TTSD_LOG_LEVEL"

	// Port is the environment variable used to determine the HTTP port
	Port = "PORT"

	// PiperVoiceDir is the environment variable pointing at the directory of piper voices
	PiperVoiceDir = "PIPER_VOICE_DIR"

	// PiperBin is the environment variable used to locate the piper executable
	PiperBin = "PIPER_BIN"

	// XTTSServerURL is the environment variable used to reach the XTTS sidecar
	XTTSServerURL = "XTTS_SERVER_URL"

	// XTTSPreload is the environment variable used to toggle eager XTTS loading
	XTTSPreload = "XTTS_PRELOAD"
)
