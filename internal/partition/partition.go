// ABOUTME: Fixed registry of partitions created in every session database
// ABOUTME: Defines partition names, the reserved metadata key and the schema version

package partition

import "fmt"

// Name identifies a partition inside a session database.
type Name string

// Partitions created at schema version 1.
const (
	UserSettings          Name = "userSettings"
	Whiteboard            Name = "whiteboard"
	ImageCache            Name = "imageCache"
	ChatMessages          Name = "chatMessages"
	UserNotifications     Name = "userNotifications"
	SpeechToTextFinalText Name = "speechToTextFinalText"

	// Metadata is reserved for bookkeeping records such as LastAccessedKey.
	Metadata Name = "metadata"
)

// LastAccessedKey is the metadata key holding the last write time in
// milliseconds since the Unix epoch.
const LastAccessedKey = "lastAccessed"

// SchemaVersion gates partition creation. Bumping it requires a migration.
const SchemaVersion = 1

var all = []Name{
	UserSettings,
	Whiteboard,
	ImageCache,
	ChatMessages,
	UserNotifications,
	SpeechToTextFinalText,
	Metadata,
}

// All returns every partition in declaration order, metadata last.
func All() []Name {
	out := make([]Name, len(all))
	copy(out, all)
	return out
}

// Known reports whether name is part of the registry.
func Known(name Name) bool {
	for _, n := range all {
		if n == name {
			return true
		}
	}
	return false
}

// Parse converts user input into a registered partition name.
func Parse(s string) (Name, error) {
	n := Name(s)
	if !Known(n) {
		return "", fmt.Errorf("unknown partition %q", s)
	}
	return n, nil
}

// String implements fmt.Stringer.
func (n Name) String() string {
	return string(n)
}
