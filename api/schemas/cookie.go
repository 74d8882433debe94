package schemas

import (
	"errors"
	"strings"
)

// Identity is the (name, domain, path) triple a blocking decision is made
// about. Domain and path default to empty when the write does not constrain
// them; an empty component is unconstrained for matching purposes only.
type Identity struct {
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// ErrEmptyCookieName is returned when a cookie string has no name segment.
var ErrEmptyCookieName = errors.New("cookie string has no name")

// ParseSetCookie extracts an Identity from a Set-Cookie style attribute
// string ("name=value; Domain=...; Path=...; Secure"). Parsing is
// deliberately permissive: the first ';'-delimited segment is name=value,
// later segments are key=value attributes matched case-insensitively, and
// anything unrecognized is ignored. The same parser handles client-side
// document.cookie assignment strings, which use the identical shape.
func ParseSetCookie(raw string) (Identity, error) {
	parts := strings.Split(strings.TrimSpace(raw), ";")
	nameValue := strings.TrimSpace(parts[0])
	name := nameValue
	if eq := strings.Index(nameValue, "="); eq >= 0 {
		name = nameValue[:eq]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, ErrEmptyCookieName
	}

	id := Identity{Name: name}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		lower := strings.ToLower(part)
		switch {
		case strings.HasPrefix(lower, "domain="):
			id.Domain = strings.TrimSpace(part[len("domain="):])
		case strings.HasPrefix(lower, "path="):
			id.Path = strings.TrimSpace(part[len("path="):])
		}
	}
	return id, nil
}
