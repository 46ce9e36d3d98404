package core

import (
	"regexp"
	"strconv"

	"github.com/google/uuid"
)

var sessionNamespace = uuid.MustParse("6f1c2b7e-3d4a-5e8f-9a0b-1c2d3e4f5a6b")

// SessionIDFor derives the persistent conversation id of a user. The result is
// stable per account and carries no readable information about it.
func SessionIDFor(userID int64) string {
	return uuid.NewSHA1(sessionNamespace, []byte(strconv.FormatInt(userID, 10))).String()
}

var markerPattern = regexp.MustCompile(`(?i)MSGID:\s*([a-f0-9-]+)`)

// ParseCorrelationID returns the id carried by a "MSGID: <id>" marker in a
// bot reply, or "" when the reply has none.
func ParseCorrelationID(content string) string {
	m := markerPattern.FindStringSubmatch(content)
	if m == nil {
		return ""
	}
	return m[1]
}

// FormatCorrelationMarker renders the marker appended to replies whose
// exchange was indexed.
func FormatCorrelationMarker(id string) string {
	return "MSGID: " + id
}
