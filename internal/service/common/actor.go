//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"errors"
	"fmt"
	"os"
	"os/user"
)

// ErrPrivilege is returned when the run needs root and does not have it.
var ErrPrivilege = errors.New("root privileges required")

// Actor describes who is running the upgrade.
type Actor struct {
	// Hostname is the machine name.
	Hostname string
	// Username is the effective user name.
	Username string
	// UID is the effective user id.
	UID int
}

// IsRoot reports whether the actor has superuser rights.
func (a Actor) IsRoot() bool {
	return a.UID == 0
}

// DetectActor gathers host and user information for the run log.
func DetectActor() (Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return Actor{}, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return Actor{}, fmt.Errorf("current user: %w", err)
	}

	return Actor{
		Hostname: hostname,
		Username: currentUser.Username,
		UID:      os.Geteuid(),
	}, nil
}

// RequireRoot fails with ErrPrivilege unless the actor is root.
func RequireRoot(actor Actor) error {
	if actor.IsRoot() {
		return nil
	}

	return fmt.Errorf("running as %s (uid %d): %w", actor.Username, actor.UID, ErrPrivilege)
}
