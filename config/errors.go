package config

import "fmt"

// ConfigurationError reports a missing or malformed input that makes the
// run unsafe to continue: the config file itself, a catalog, or the mapping
// file. It is always fatal and raised before anything is mutated.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Errorf builds a ConfigurationError for path.
func Errorf(path, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Path: path, Err: fmt.Errorf(format, args...)}
}
