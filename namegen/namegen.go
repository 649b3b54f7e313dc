package namegen

import (
	"regexp"
	"strings"

	vendor "github.com/anandvarma/namegen"
)

var gen = vendor.New()

var unsafeRegex = regexp.MustCompile(`[^a-z0-9]+`)

// ID names a manager instance. It is used as a directory name, so it only
// contains lowercase letters, digits and dashes.
type ID string

func Get() ID {
	return Sanitize(gen.Get())
}

// Sanitize turns any name into a valid ID.
func Sanitize(name string) ID {
	id := strings.Trim(unsafeRegex.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if id == "" {
		return "manager"
	}
	return ID(id)
}

func (id ID) String() string {
	return string(id)
}
