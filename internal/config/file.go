package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source resolves settings from the environment, falling back to values read
// from a YAML file. Keys in the file use the environment variable names,
// case-insensitively:
//
//	port: 8080
//	store_driver: sqlite
//	dispatcher_command_timeout: 90s
//
// A nil *Source reads the environment only.
type Source struct {
	values map[string]string
}

// LoadFile reads a flat YAML mapping from path. An empty path yields an empty source.
func LoadFile(path string) (*Source, error) {
	src := &Source{values: map[string]string{}}
	if path == "" {
		return src, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("config key %q: nested values are not supported", k)
		case nil:
			continue
		}
		src.values[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return src, nil
}

func (s *Source) fileValue(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok
}

// String returns the setting for key, or defaultValue.
func (s *Source) String(key, defaultValue string) string {
	v, _ := s.fileValue(key)
	return GetEnv(key, parsed(v, defaultValue, parseString))
}

// Int returns the integer setting for key, or defaultValue.
func (s *Source) Int(key string, defaultValue int) int {
	v, _ := s.fileValue(key)
	return GetIntEnv(key, parsed(v, defaultValue, strconv.Atoi))
}

// Duration returns the duration setting for key, or defaultValue.
func (s *Source) Duration(key string, defaultValue time.Duration) time.Duration {
	v, _ := s.fileValue(key)
	return GetDurationEnv(key, parsed(v, defaultValue, time.ParseDuration))
}

// Bool returns the boolean setting for key, or defaultValue.
func (s *Source) Bool(key string, defaultValue bool) bool {
	v, _ := s.fileValue(key)
	return GetBoolEnv(key, parsed(v, defaultValue, strconv.ParseBool))
}
