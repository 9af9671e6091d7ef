package config

import "strconv"

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "RADIOMETRY_"

// Lookup matches os.LookupEnv.
type Lookup func(string) (string, bool)

// EnvFloat returns the float stored under EnvPrefix+key, or def when unset
// or unparsable.
func EnvFloat(lookup Lookup, key string, def float64) float64 {
	if val, ok := lookup(EnvPrefix + key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

// EnvInt is EnvFloat for integers.
func EnvInt(lookup Lookup, key string, def int) int {
	if val, ok := lookup(EnvPrefix + key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

// EnvBool is EnvFloat for booleans.
func EnvBool(lookup Lookup, key string, def bool) bool {
	if val, ok := lookup(EnvPrefix + key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

// EnvString returns the raw value under EnvPrefix+key, or def.
func EnvString(lookup Lookup, key, def string) string {
	if val, ok := lookup(EnvPrefix + key); ok {
		return val
	}
	return def
}
