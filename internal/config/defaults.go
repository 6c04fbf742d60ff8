package config

const (
	defaultDataDir                 = "~/.local/share/parley/data"
	defaultLogDir                  = "~/.local/share/parley/logs"
	defaultAPIBind                 = "127.0.0.1:7512"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultTranscriptionBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultTranscriptionModel      = "gemini-2.5-flash"
	defaultTranscriptionLanguage   = "en-US"
	defaultTranscriptionTimeout    = 120
	defaultChatBaseURL             = "https://openrouter.ai/api/v1/chat/completions"
	defaultChatReferer             = "https://github.com/five82/parley"
	defaultChatTitle               = "Parley"
	defaultChatTimeoutMinutes      = 10
	defaultChatRetryAttempts       = 3
	defaultChatRetryBaseMS         = 1000
	defaultRetentionDays           = 7
	defaultSweepHour               = 3
	defaultSweepTimezone           = "America/New_York"
	defaultNotifyRequestTimeout    = 10
	defaultRateLimitPerSecond      = 2.0
	defaultRateLimitBurst          = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Transcription: Transcription{
			BaseURL:        defaultTranscriptionBaseURL,
			DefaultModel:   defaultTranscriptionModel,
			Language:       defaultTranscriptionLanguage,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Chat: Chat{
			BaseURL:        defaultChatBaseURL,
			Referer:        defaultChatReferer,
			Title:          defaultChatTitle,
			TimeoutMinutes: defaultChatTimeoutMinutes,
			RetryAttempts:  defaultChatRetryAttempts,
			RetryBaseMS:    defaultChatRetryBaseMS,
		},
		Retention: Retention{
			Days:      defaultRetentionDays,
			SweepHour: defaultSweepHour,
			Timezone:  defaultSweepTimezone,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Preservation:   true,
			Retry:          true,
			Sweep:          true,
			Errors:         true,
		},
		RateLimit: RateLimit{
			RequestsPerSecond: defaultRateLimitPerSecond,
			Burst:             defaultRateLimitBurst,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
