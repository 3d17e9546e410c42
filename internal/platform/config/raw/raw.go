// Package raw is the bootstrap env reader. It must stay dependency free so
// the logger can read LOG_* before the full config package is usable
package raw

import (
	"os"
	"strconv"
	"strings"
)

// Conf reads env vars under a namespace prefix such as "AGENT_" or "LOG_"
type Conf struct{ prefix string }

// New returns the unprefixed root Conf
func New() Conf { return Conf{} }

// Prefix narrows the view by appending p to the namespace
func (c Conf) Prefix(p string) Conf { return Conf{prefix: c.prefix + p} }

func (c Conf) key(k string) string { return c.prefix + k }

// Get returns the trimmed env var, or def when unset or blank
func (c Conf) Get(key, def string) string {
	v := strings.TrimSpace(os.Getenv(c.key(key)))
	if v == "" {
		return def
	}
	return v
}

// GetBool parses a bool-like env ("1|true|yes") with default fallback
func (c Conf) GetBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(c.key(key))))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

// GetInt parses an integer with default fallback; non-numeric -> def
func (c Conf) GetInt(key string, def int) int {
	s := strings.TrimSpace(os.Getenv(c.key(key)))
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
