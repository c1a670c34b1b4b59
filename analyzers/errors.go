package analyzers

import "fmt"

// ConfigError means the analyzer configuration (YAML definitions,
// kwargs) is malformed. The analysis fails but the search index
// stays ready.
type ConfigError struct {
	Msg string
}

func (self *ConfigError) Error() string {
	return "config error: " + self.Msg
}

func ConfigErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// DependencyError is raised at plan build time when an analyzer's
// dependencies are unknown or cyclic.
type DependencyError struct {
	Analyzer string
	Msg      string
}

func (self *DependencyError) Error() string {
	return fmt.Sprintf("dependency error for %s: %s",
		self.Analyzer, self.Msg)
}

// ValidationError means the analyzer produced a malformed output
// record. The framework substitutes a default result.
type ValidationError struct {
	Msg string
}

func (self *ValidationError) Error() string {
	return "validation error: " + self.Msg
}

// TimeoutError means an external sub call exceeded its budget. The
// governing analyzer records the partial result and continues.
type TimeoutError struct {
	Op string
}

func (self *TimeoutError) Error() string {
	return fmt.Sprintf("timeout in %s", self.Op)
}

// Cancelled is returned from event iteration when the analysis record
// was cancelled externally.
type Cancelled struct{}

func (self *Cancelled) Error() string {
	return "cancelled"
}
