// Package sysutil holds process-level helpers for the server entrypoint and
// the config loader: choosing the global log level and reading environment
// variables that have aliases or boolean spellings.
package sysutil

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ParseLogLevel maps a LOG_LEVEL value to a zerolog level. "warning" is an
// alias of "warn"; blank or unknown names fall back to info.
func ParseLogLevel(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// SetLogLevel applies the parsed level globally and returns it.
func SetLogLevel(name string) zerolog.Level {
	lvl := ParseLogLevel(name)
	zerolog.SetGlobalLevel(lvl)
	return lvl
}

// ParseBool recognises the usual spellings of a flag. ok is false when v is
// neither a known true nor a known false value.
func ParseBool(v string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	}
	return false, false
}

// EnvBool reads a boolean variable, keeping def when it is unset or
// unrecognised.
func EnvBool(key string, def bool) bool {
	if v, ok := ParseBool(os.Getenv(key)); ok {
		return v
	}
	return def
}

// FirstEnv returns the trimmed value of the first key that is set to a
// non-blank value, or def.
func FirstEnv(def string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return def
}
