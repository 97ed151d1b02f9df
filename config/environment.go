package config

import (
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

const (
	keyNodeEnv = "NODE_ENV"
	keyPort    = "PORT"
)

// Environment is the normalized form of an environment descriptor.
type Environment struct {
	NodeEnv string
	Port    int
}

// LookupEnvironment builds an environment descriptor from a lookup function such as
// [os.LookupEnv]. Only the variables that are actually set end up in the descriptor.
func LookupEnvironment(lookup func(string) (string, bool)) map[string]any {
	env := map[string]any{}
	for _, key := range []string{keyNodeEnv, keyPort} {
		if value, ok := lookup(key); ok {
			env[key] = value
		}
	}
	return env
}

// NormalizeEnvironment turns any environment descriptor into an [Environment].
//
// A descriptor is either nil, a bare environment name, a map with NODE_ENV and PORT keys or an
// Environment value. Anything else is treated as an empty descriptor. Missing or unparsable
// values fall back to the given defaults.
func NormalizeEnvironment(descriptor any, defaults Defaults) Environment {
	var nodeEnv, port any
	switch env := descriptor.(type) {
	case string:
		nodeEnv = env
	case map[string]any:
		nodeEnv, port = env[keyNodeEnv], env[keyPort]
	case map[string]string:
		if v, ok := env[keyNodeEnv]; ok {
			nodeEnv = v
		}
		if v, ok := env[keyPort]; ok {
			port = v
		}
	case Environment:
		nodeEnv, port = env.NodeEnv, env.Port
	case *Environment:
		if env != nil {
			nodeEnv, port = env.NodeEnv, env.Port
		}
	}

	normalized := Environment{
		NodeEnv: cast.ToString(nodeEnv),
		Port:    defaults.Port,
	}
	if normalized.NodeEnv == "" {
		normalized.NodeEnv = defaults.NodeEnv
	}
	if p, ok := ParsePort(port); ok {
		normalized.Port = p
	}
	return normalized
}

// ParsePort interprets a PORT value. Integers are used as they are, floats are truncated and
// strings are read up to the first character that is not part of a base-10 integer, so "8080"
// and "8080/tcp" both yield 8080. Zero values and anything without a leading integer are
// rejected.
func ParsePort(value any) (int, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case string:
		if v == "" {
			return 0, false
		}
		return parseLeadingInt(v)
	case float32:
		return truncate(float64(v))
	case float64:
		return truncate(v)
	case bool:
		return 0, false
	}
	port, err := cast.ToIntE(value)
	if err != nil || port == 0 {
		return 0, false
	}
	return port, true
}

func truncate(f float64) (int, bool) {
	if f == 0 || math.IsNaN(f) || f >= math.MaxInt || f < math.MinInt {
		return 0, false
	}
	return int(f), true
}

func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
