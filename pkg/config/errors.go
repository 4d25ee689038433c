// Package config loads the bridge's TOML configuration file.
package config

import (
	"fmt"
	"strings"
)

// ConfigError reports a rejected option by its TOML key.
type ConfigError struct {
	Section string
	Option  string
	Value   interface{} // nil when the option is absent
	Message string
	Cause   error
}

// Key returns the dotted TOML key, e.g. "display.baud_rate".
func (e *ConfigError) Key() string {
	return strings.Trim(e.Section+"."+e.Option, ".")
}

func (e *ConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("config: ")
	if key := e.Key(); key != "" {
		sb.WriteString(key)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Value != nil {
		fmt.Fprintf(&sb, " (got %v)", e.Value)
	}
	return sb.String()
}

func (e *ConfigError) Unwrap() error { return e.Cause }

func parseError(section, option string, err error) *ConfigError {
	return &ConfigError{Section: section, Option: option, Message: err.Error(), Cause: err}
}

func missing(section, option string) *ConfigError {
	return &ConfigError{Section: section, Option: option, Message: "must be set"}
}

func rejected(section, option string, value interface{}, constraint string) *ConfigError {
	return &ConfigError{Section: section, Option: option, Value: value, Message: constraint}
}
