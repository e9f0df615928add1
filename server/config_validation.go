package server

import (
	"log/slog"
)

// applySecureDefaults applies secure-by-default configuration values.
// This follows the principle: secure by default, opt-in for less secure options.
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config, logger)

	if config.DefaultReturnTo == "" || !isSafeReturnPath(config.DefaultReturnTo) {
		if config.DefaultReturnTo != "" {
			logger.Warn("DefaultReturnTo is not a local path, using default",
				"configured", config.DefaultReturnTo,
				"default", DefaultReturnTo)
		}
		config.DefaultReturnTo = DefaultReturnTo
	}

	logSecurityWarnings(config, logger)

	return config
}

// applyTimeDefaults sets default values for time-based configuration.
func applyTimeDefaults(config *Config, logger *slog.Logger) {
	switch {
	case config.StateTTL == 0:
		config.StateTTL = DefaultStateTTL
	case config.StateTTL < MinStateTTL:
		logger.Warn("StateTTL below minimum, enforcing floor",
			"configured", config.StateTTL,
			"minimum", MinStateTTL)
		config.StateTTL = MinStateTTL
	case config.StateTTL > MaxStateTTL:
		logger.Warn("StateTTL above maximum, enforcing ceiling",
			"configured", config.StateTTL,
			"maximum", MaxStateTTL)
		config.StateTTL = MaxStateTTL
	}
}

func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if config.DisableState {
		logger.Warn("SECURITY WARNING: State verification is DISABLED",
			"risk", "Callbacks are not bound to a browser session (login CSRF)",
			"recommendation", "Only disable state for local testing")
	}
	if config.DisableNonce && !config.DisableState {
		logger.Warn("SECURITY WARNING: Nonce binding is DISABLED",
			"risk", "Identity tokens are not bound to the login attempt",
			"recommendation", "Leave nonce binding enabled")
	}
}
