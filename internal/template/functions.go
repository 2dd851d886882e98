package template

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// now is replaced in tests.
var now = time.Now

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// builtin is a placeholder function. arity < 0 accepts the raw argument
// string unsplit.
type builtin struct {
	arity int
	call  func(args []string) (string, error)
}

// builtins are usable in commands and env values as ${name(args)}, for
// example ${uuid()}, ${random(1,100)} or ${email(example.com)}.
var builtins = map[string]builtin{
	"uuid":          {0, func([]string) (string, error) { return uuid.NewString(), nil }},
	"timestamp":     {0, func([]string) (string, error) { return strconv.FormatInt(now().Unix(), 10), nil }},
	"timestamp_ms":  {0, func([]string) (string, error) { return strconv.FormatInt(now().UnixMilli(), 10), nil }},
	"random":        {2, randomInRange},
	"random_string": {1, randomString},
	"date":          {-1, formatDate},
	"email":         {1, applicantEmail},
	"phone":         {0, applicantPhone},
}

// evalFunction evaluates expr if it has the form name(args). The bool
// reports whether expr was a function call at all.
func evalFunction(expr string) (string, bool, error) {
	open := strings.IndexByte(expr, '(')
	if open <= 0 || !strings.HasSuffix(expr, ")") {
		return "", false, nil
	}
	name := expr[:open]
	if strings.ContainsAny(name, ".:") {
		// a variable whose fallback looks like a call
		return "", false, nil
	}
	raw := expr[open+1 : len(expr)-1]

	fn, ok := builtins[name]
	if !ok {
		return "", true, fmt.Errorf("function %q not found", name)
	}

	var args []string
	switch {
	case fn.arity < 0:
		args = []string{raw}
	case strings.TrimSpace(raw) != "":
		for _, a := range strings.Split(raw, ",") {
			args = append(args, strings.TrimSpace(a))
		}
	}
	if fn.arity >= 0 && len(args) != fn.arity {
		return "", true, fmt.Errorf("%s() takes %d argument(s), got %d", name, fn.arity, len(args))
	}

	out, err := fn.call(args)
	if err != nil {
		return "", true, fmt.Errorf("%s(): %w", name, err)
	}
	return out, true, nil
}

// randInt returns a uniform value in [0, n).
func randInt(n int64) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

// randomInRange implements random(lo,hi), both bounds inclusive.
func randomInRange(args []string) (string, error) {
	lo, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid lower bound %q", args[0])
	}
	hi, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid upper bound %q", args[1])
	}
	if lo > hi {
		return "", fmt.Errorf("lower bound %d is above upper bound %d", lo, hi)
	}
	n, err := randInt(hi - lo + 1)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(lo+n, 10), nil
}

func randomString(args []string) (string, error) {
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 || n > 1000 {
		return "", fmt.Errorf("length must be between 1 and 1000, got %q", args[0])
	}
	return randomFrom(alphanumeric, n)
}

func randomFrom(charset string, n int) (string, error) {
	buf := make([]byte, n)
	for i := range buf {
		idx, err := randInt(int64(len(charset)))
		if err != nil {
			return "", err
		}
		buf[i] = charset[idx]
	}
	return string(buf), nil
}

// formatDate implements date(layout) with Go reference-time layouts,
// e.g. date(2006-01-02). An empty layout gives RFC 3339.
func formatDate(args []string) (string, error) {
	layout := strings.TrimSpace(args[0])
	if layout == "" {
		layout = time.RFC3339
	}
	return now().Format(layout), nil
}

// applicantEmail implements email(domain): a throwaway plus-addressed
// applicant such as loadtest+1718000000000-k3j9x2@example.com.
func applicantEmail(args []string) (string, error) {
	domain := args[0]
	if domain == "" || strings.ContainsAny(domain, "@ ") {
		return "", fmt.Errorf("invalid domain %q", domain)
	}
	suffix, err := randomFrom("abcdefghijklmnopqrstuvwxyz0123456789", 6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("loadtest+%d-%s@%s", now().UnixMilli(), suffix, domain), nil
}

// applicantPhone implements phone(): a number in the 555-0100 to 555-0199
// range reserved for fictional use.
func applicantPhone([]string) (string, error) {
	n, err := randInt(100)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("+1212555%04d", 100+n), nil
}
