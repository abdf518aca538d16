// Package discover locates serial device nodes by path pattern.
package discover

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrDeviceNotFound is returned when no device node matches the pattern.
var ErrDeviceNotFound = errors.New("device not found")

// First returns the first path matching pattern. When several nodes
// match, the lexically first wins; there is no disambiguation.
func First(pattern string) (string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("bad device pattern %q: %v", pattern, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no device matching %q: %w", pattern, ErrDeviceNotFound)
	}
	return matches[0], nil
}
