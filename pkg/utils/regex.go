package utils

import (
	"regexp"
)

// CompilePattern compiles a single configured regex, tagging failures as config errors.
func CompilePattern(name, pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, WrapErrorf(ErrConfigValidation, "invalid %s regex '%s': %v", name, pattern, err)
	}
	return re, nil
}
