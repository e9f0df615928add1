package providers

import (
	"fmt"
	"net/http"
)

// maxCallbackBodySize bounds the form_post body read from the provider callback.
const maxCallbackBodySize = 64 * 1024

// Callback holds the parameters an identity provider sends back to the redirect URI.
type Callback struct {
	// Code is the authorization code
	Code string

	// State is the anti-forgery state echoed back by the provider
	State string

	// User is the raw side-channel user payload. Apple sends it as a JSON
	// form field only on the first consent for a given client.
	User string

	// Error is set when the provider reports a failed or cancelled authorization
	Error string

	// ErrorDescription optionally describes Error
	ErrorDescription string
}

// HasUserPayload reports whether the callback carried a side-channel user payload.
func (c *Callback) HasUserPayload() bool {
	return c != nil && c.User != ""
}

// CallbackFromRequest extracts callback parameters from a provider redirect.
// Both response_mode=form_post bodies and query parameters are accepted;
// body values take precedence.
func CallbackFromRequest(r *http.Request) (*Callback, error) {
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(nil, r.Body, maxCallbackBodySize)
	}
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse callback form: %w", err)
	}

	return &Callback{
		Code:             r.FormValue("code"),
		State:            r.FormValue("state"),
		User:             r.FormValue("user"),
		Error:            r.FormValue("error"),
		ErrorDescription: r.FormValue("error_description"),
	}, nil
}
