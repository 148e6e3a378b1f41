package sdf

import (
	"errors"
	"fmt"
)

// ErrFallbackToCPU indicates the registered accelerator cannot handle this
// operation. Solvers treat it as a signal to run the CPU path transparently.
var ErrFallbackToCPU = errors.New("sdf: falling back to CPU compute")

// ConfigurationError reports an invalid solver or optimizer parameter.
// It is returned from constructors; once a solver is built, its operations
// do not fail.
type ConfigurationError struct {
	Param  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("sdf: invalid %s %v: %s", e.Param, e.Value, e.Reason)
}

func configErr(param string, value any, reason string) error {
	return &ConfigurationError{Param: param, Value: value, Reason: reason}
}

// isPowerOfTwo reports whether n is a positive power of two.
func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
