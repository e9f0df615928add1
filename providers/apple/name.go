package apple

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/giantswarm/appleid-oauth/providers"
)

// errInvalidUserPayload is returned when the side-channel user field is not a JSON object.
var errInvalidUserPayload = errors.New("user payload is not a JSON object")

// SideChannelUser is the profile Apple posts in the "user" form field.
// It is delivered only with the first authorization of a client and never repeated.
type SideChannelUser struct {
	FirstName string
	LastName  string
	Email     string
}

// ParseSideChannelUser parses the raw "user" callback field,
// e.g. {"name":{"firstName":"Ada","lastName":"Lovelace"},"email":"ada@example.com"}.
func ParseSideChannelUser(raw string) (*SideChannelUser, error) {
	if !gjson.Valid(raw) {
		return nil, errInvalidUserPayload
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return nil, errInvalidUserPayload
	}

	return &SideChannelUser{
		FirstName: parsed.Get("name.firstName").String(),
		LastName:  parsed.Get("name.lastName").String(),
		Email:     parsed.Get("email").String(),
	}, nil
}

// FullName joins first and last name with a single space and trims the result.
// A missing part counts as empty, so {"firstName":"Ada"} yields "Ada".
func (u *SideChannelUser) FullName() string {
	if u == nil {
		return ""
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ReconcileName computes the user's full name for this exchange.
// Identity token claims never carry a name, so the side-channel payload is the
// only source: without it the name is absent (""). A payload that cannot be
// parsed is reported as an error and also yields an absent name.
func ReconcileName(callback *providers.Callback) (string, error) {
	if !callback.HasUserPayload() {
		return "", nil
	}

	user, err := ParseSideChannelUser(callback.User)
	if err != nil {
		return "", err
	}
	return user.FullName(), nil
}
