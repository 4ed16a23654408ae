package session

import "github.com/yoursandeshshrestha/TreesIndia-sub004/internal/config"

// DefaultSessionName is used when neither the flag nor the config names one.
const DefaultSessionName = "main"

// Resolve picks the active session: an explicit flag value wins, then the
// default_session from config.toml, then "main". A missing or unreadable
// config file silently falls through to the default.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
