// ABOUTME: Database naming for session databases
// ABOUTME: Renders (session, user) into the "pnm-" prefixed name shared with older clients

package sessionstore

import (
	"fmt"
	"strings"
)

// NamePrefix starts every session database name. Older clients recognize
// candidates for cleanup by it, so it must not change.
const NamePrefix = "pnm-"

// DatabaseName returns the database name for a session and user.
func DatabaseName(sessionID, userID string) (string, error) {
	if sessionID == "" || userID == "" {
		return "", fmt.Errorf("%w: session and user IDs are required", ErrInvalidIdentity)
	}
	for _, id := range []string{sessionID, userID} {
		if strings.ContainsAny(id, "/\\\x00") {
			return "", fmt.Errorf("%w: %q contains a path separator or NUL", ErrInvalidIdentity, id)
		}
	}
	return NamePrefix + sessionID + "-" + userID, nil
}
