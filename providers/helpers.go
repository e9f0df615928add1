package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// OAuth2ConfigExchanger is an interface for the Exchange method of oauth2.Config.
// This allows us to create shared helper functions that work with any provider's config.
type OAuth2ConfigExchanger interface {
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// ExchangeCode is a shared helper for exchanging authorization codes.
// It performs a single round trip using httpClient and classifies failures:
//   - the endpoint answered with a non-2xx status: *TokenExchangeError with the body
//   - the request never completed (network, timeout, cancellation): *TransportError
//   - the response could not be parsed or lacks access_token: *TokenExchangeError
func ExchangeCode(ctx context.Context, config OAuth2ConfigExchanger, httpClient *http.Client, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	token, err := config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, ClassifyTokenEndpointError(ctx, err)
	}
	if token == nil || token.AccessToken == "" {
		return nil, &TokenExchangeError{Reason: "response missing access_token"}
	}

	return token, nil
}

// ClassifyTokenEndpointError maps an error returned by golang.org/x/oauth2 onto
// the provider error taxonomy.
func ClassifyTokenEndpointError(ctx context.Context, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return &TokenExchangeError{
			StatusCode: status,
			ErrorCode:  retrieveErr.ErrorCode,
			Body:       string(retrieveErr.Body),
			Err:        err,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || ctx.Err() != nil ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Err: err}
	}

	return &TokenExchangeError{Err: err}
}

// IDToken returns the id_token carried alongside an OAuth2 token response.
func IDToken(token *oauth2.Token) string {
	if token == nil {
		return ""
	}
	idToken, _ := token.Extra("id_token").(string)
	return idToken
}

// ExpiresIn returns the expires_in value (seconds) of a token response.
// It falls back to the remaining lifetime derived from Expiry, and returns 0
// when the provider did not report a lifetime.
func ExpiresIn(token *oauth2.Token) int64 {
	if token == nil {
		return 0
	}

	switch v := token.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}

	if !token.Expiry.IsZero() {
		if remaining := time.Until(token.Expiry); remaining > 0 {
			return int64(remaining.Round(time.Second) / time.Second)
		}
	}
	return 0
}

// QueryParam is a single key/value pair of an ordered query string.
type QueryParam struct {
	Key   string
	Value string
}

// EncodeQueryRFC3986 encodes params in the given order, percent-encoding keys
// and values per RFC 3986 (a space becomes "%20", never "+").
func EncodeQueryRFC3986(params []QueryParam) string {
	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(EscapeRFC3986(p.Key))
		sb.WriteByte('=')
		sb.WriteString(EscapeRFC3986(p.Value))
	}
	return sb.String()
}

// EscapeRFC3986 percent-encodes s leaving only RFC 3986 unreserved characters intact.
func EscapeRFC3986(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// BuildURL appends an RFC 3986 encoded query to base.
func BuildURL(base string, params []QueryParam) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s%s", base, sep, EncodeQueryRFC3986(params))
}
