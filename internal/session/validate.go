package session

import (
	"fmt"
	"regexp"
)

// Session names become directory names under the sessions root, so the
// alphabet is kept to lowercase alphanumerics plus - and _.
var namePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName reports whether name is usable as a session name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("session name %q: want 1-64 chars of [a-z0-9_-]", name)
	}
	return nil
}
