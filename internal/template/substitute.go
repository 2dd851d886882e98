// Package template expands ${...} placeholders in worker commands and
// environment values.
//
// Supported forms:
//
//	${workerId}, ${type}, ${env}, ${resultsDir}  worker variables
//	${data.<field>}                             a column of the worker's data row
//	${env:NAME}                                 the orchestrator's environment
//	${uuid()}, ${email(example.com)}, ...       built-in functions
//
// Any variable or env form may carry a fallback, as in
// ${env:BASE_URL:-http://localhost:3000}.
package template

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"loadswarm/internal/core"
)

var placeholder = regexp.MustCompile(`\$\{([^}]+)\}`)

// Substitute expands every placeholder in text. All unresolved
// placeholders are reported together.
func Substitute(text string, vars core.Variables) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}

	var errs []error
	out := placeholder.ReplaceAllStringFunc(text, func(match string) string {
		val, err := resolve(match[2:len(match)-1], vars)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		return val
	})
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return out, nil
}

func resolve(expr string, vars core.Variables) (string, error) {
	if val, isFunc, err := evalFunction(expr); isFunc {
		return val, err
	}

	name, fallback, hasFallback := strings.Cut(expr, ":-")
	if envName, ok := strings.CutPrefix(name, "env:"); ok {
		if val, ok := os.LookupEnv(envName); ok {
			return val, nil
		}
		if hasFallback {
			return fallback, nil
		}
		return "", fmt.Errorf("env var %q not set", envName)
	}

	if val, ok := vars.Get(name); ok {
		return fmt.Sprint(val), nil
	}
	if hasFallback {
		return fallback, nil
	}
	return "", fmt.Errorf("variable %q not found", name)
}

// SubstituteArgs expands every element of an argv slice.
func SubstituteArgs(args []string, vars core.Variables) ([]string, error) {
	out := make([]string, len(args))
	var errs []error
	for i, arg := range args {
		s, err := Substitute(arg, vars)
		if err != nil {
			errs = append(errs, fmt.Errorf("arg %d: %w", i, err))
			continue
		}
		out[i] = s
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// SubstituteMap expands every value of m; keys are left alone.
func SubstituteMap(m map[string]string, vars core.Variables) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	var errs []error
	for k, v := range m {
		s, err := Substitute(v, vars)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			continue
		}
		out[k] = s
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
