// Package coursekey normalizes and parses Open edX course identifiers.
package coursekey

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// VersionedPrefix marks the current course-key format.
const VersionedPrefix = "course-v1:"

// ErrInvalidKey is returned when an identifier is not a recognizable course key.
var ErrInvalidKey = errors.New("invalid course key")

const idChars = `[\w\-~.:]+`

var (
	versionedPattern = regexp.MustCompile(`^course-v1:(` + idChars + `)\+(` + idChars + `)\+(` + idChars + `)((?:\+(?:branch|version)@` + idChars + `)*)$`)
	legacyPattern    = regexp.MustCompile(`^(` + idChars + `)/(` + idChars + `)/(` + idChars + `)$`)
)

// Key is a parsed course identifier.
type Key struct {
	Org    string
	Course string
	Run    string
	// Suffix holds optional "+branch@..+version@.." parts, verbatim.
	Suffix string
	Legacy bool
}

// String renders the key in its canonical form.
func (k Key) String() string {
	if k.Legacy {
		return k.Org + "/" + k.Course + "/" + k.Run
	}
	return VersionedPrefix + k.Org + "+" + k.Course + "+" + k.Run + k.Suffix
}

// DisplayName is the fallback title derived from the course number.
func (k Key) DisplayName() string {
	return strings.ReplaceAll(k.Course, "_", " ")
}

// Normalize repairs identifiers that went through URL encoding. Percent
// escapes are decoded until nothing changes, and a versioned key whose "+"
// separators arrived as spaces gets them restored. Normalize is idempotent.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		decoded, err := url.PathUnescape(s)
		if err != nil || decoded == s {
			break
		}
		s = decoded
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, VersionedPrefix) && strings.Contains(s, " ") && !strings.Contains(s, "+") {
		s = strings.ReplaceAll(s, " ", "+")
	}
	return s
}

// Parse validates a normalized identifier.
func Parse(s string) (Key, error) {
	if m := versionedPattern.FindStringSubmatch(s); m != nil {
		return Key{Org: m[1], Course: m[2], Run: m[3], Suffix: m[4]}, nil
	}
	if strings.HasPrefix(s, VersionedPrefix) {
		return Key{}, ErrInvalidKey
	}
	if m := legacyPattern.FindStringSubmatch(s); m != nil {
		return Key{Org: m[1], Course: m[2], Run: m[3], Legacy: true}, nil
	}
	return Key{}, ErrInvalidKey
}
