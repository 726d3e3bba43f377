package archive

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseBookID accepts a bare identifier or a details/stream URL and returns the
// book identifier.
func ParseBookID(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", fmt.Errorf("%w: empty book identifier", ErrPrecondition)
	}
	if !strings.Contains(arg, "/") {
		return arg, nil
	}

	u, err := url.Parse(arg)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a book URL", ErrPrecondition, arg)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if (parts[i] == "details" || parts[i] == "stream") && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}
	return "", fmt.Errorf("%w: no book identifier in %q", ErrPrecondition, arg)
}
