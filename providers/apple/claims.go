package apple

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/giantswarm/appleid-oauth/providers"
)

// Claims is the decoded payload of an Apple identity token.
type Claims struct {
	// Subject is the stable, unique identifier of the user for this team.
	Subject string

	// Email may be a private relay address (see IsPrivateEmail)
	Email string

	EmailVerified  bool
	IsPrivateEmail bool

	Issuer    string
	Audience  []string
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// Raw is the full claim set
	Raw map[string]any
}

// DecodeClaims splits a compact identity token and decodes its payload segment.
// The signature is not checked here; see IDTokenVerifier.
//
// The payload is accepted in either base64 alphabet, with or without padding.
// A token with a segment count other than three, an undecodable payload, a
// payload that is not a JSON object, or a missing "sub" claim yields a
// *providers.MalformedIdentityTokenError. DecodeClaims has no side effects.
func DecodeClaims(idToken string) (*Claims, error) {
	segments := strings.Split(idToken, ".")
	if len(segments) != 3 {
		return nil, &providers.MalformedIdentityTokenError{
			Reason: fmt.Sprintf("expected 3 segments, got %d", len(segments)),
		}
	}

	payload, err := decodeSegment(segments[1])
	if err != nil {
		return nil, &providers.MalformedIdentityTokenError{Reason: "payload is not valid base64", Err: err}
	}

	if !gjson.ValidBytes(payload) {
		return nil, &providers.MalformedIdentityTokenError{Reason: "payload is not valid JSON"}
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil || raw == nil {
		return nil, &providers.MalformedIdentityTokenError{Reason: "payload is not a JSON object", Err: err}
	}

	parsed := gjson.ParseBytes(payload)

	sub := parsed.Get("sub")
	if sub.Type != gjson.String || sub.String() == "" {
		return nil, &providers.MalformedIdentityTokenError{Reason: "missing sub claim"}
	}

	claims := &Claims{
		Subject: sub.String(),
		Email:   parsed.Get("email").String(),
		// Apple sends these booleans either as JSON booleans or as "true"/"false" strings
		EmailVerified:  parsed.Get("email_verified").Bool(),
		IsPrivateEmail: parsed.Get("is_private_email").Bool(),
		Issuer:         parsed.Get("iss").String(),
		Nonce:          parsed.Get("nonce").String(),
		IssuedAt:       numericDate(parsed.Get("iat")),
		ExpiresAt:      numericDate(parsed.Get("exp")),
		Raw:            raw,
	}

	aud := parsed.Get("aud")
	if aud.IsArray() {
		for _, a := range aud.Array() {
			claims.Audience = append(claims.Audience, a.String())
		}
	} else if aud.Exists() {
		claims.Audience = []string{aud.String()}
	}

	return claims, nil
}

// decodeSegment decodes a JWT segment, tolerating standard or URL alphabets and missing padding.
func decodeSegment(segment string) ([]byte, error) {
	s := strings.TrimRight(segment, "=")
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	return base64.RawStdEncoding.DecodeString(s)
}

func numericDate(r gjson.Result) time.Time {
	if !r.Exists() || r.Int() == 0 {
		return time.Time{}
	}
	return time.Unix(r.Int(), 0)
}
