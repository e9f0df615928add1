package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"

	"github.com/giantswarm/appleid-oauth/providers"
	"github.com/giantswarm/appleid-oauth/providers/mock"
	"github.com/giantswarm/appleid-oauth/security"
	"github.com/giantswarm/appleid-oauth/storage"
	storagemock "github.com/giantswarm/appleid-oauth/storage/mock"
)

type testHandler struct {
	handler  *Handler
	provider *mock.MockProvider
	states   *storagemock.MockStateStore
	users    *storagemock.MockUserStore
}

func setupTestHandler(t *testing.T, config *Config) *testHandler {
	t.Helper()

	provider := mock.NewMockProvider()
	states := storagemock.NewMockStateStore()
	users := storagemock.NewMockUserStore()

	srv, err := NewServer(provider, states, users, nil, nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	h := NewHandler(srv, config)
	t.Cleanup(h.Stop)

	return &testHandler{handler: h, provider: provider, states: states, users: users}
}

// login performs a login request and returns the response with the state it issued
func (th *testHandler) login(t *testing.T, returnTo string) (*http.Response, string) {
	t.Helper()

	target := "/auth/apple/login"
	if returnTo != "" {
		target += "?return_to=" + url.QueryEscape(returnTo)
	}
	rec := httptest.NewRecorder()
	th.handler.ServeLogin(rec, httptest.NewRequest(http.MethodGet, target, nil))

	resp := rec.Result()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("login status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	location, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location header: %v", err)
	}
	return resp, location.Query().Get("state")
}

func bindingCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	t.Fatal("session binding cookie not set")
	return nil
}

// callback posts a form_post callback, optionally carrying the binding cookie
func (th *testHandler) callback(cookie *http.Cookie, form url.Values) *http.Response {
	req := httptest.NewRequest(http.MethodPost, "/auth/apple/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	th.handler.ServeCallback(rec, req)
	return rec.Result()
}

func TestServeLogin(t *testing.T) {
	th := setupTestHandler(t, nil)

	resp, state := th.login(t, "/projects")

	if !strings.HasPrefix(resp.Header.Get("Location"), "https://mock.example.com/authorize") {
		t.Errorf("Location = %q, want the provider authorization URL", resp.Header.Get("Location"))
	}
	if state == "" {
		t.Fatal("authorization URL carries no state")
	}

	cookie := bindingCookie(t, resp)
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteNoneMode {
		t.Errorf("cookie attributes = HttpOnly:%v Secure:%v SameSite:%v", cookie.HttpOnly, cookie.Secure, cookie.SameSite)
	}
	if cookie.Path != "/" || cookie.MaxAge <= 0 {
		t.Errorf("cookie Path = %q, MaxAge = %d", cookie.Path, cookie.MaxAge)
	}

	stored, ok := th.states.Get(state)
	if !ok {
		t.Fatal("state was not stored")
	}
	if stored.SessionBindingHash != security.HashSessionBinding(cookie.Value) {
		t.Error("stored state is not bound to the cookie value")
	}
	if stored.ReturnTo != "/projects" {
		t.Errorf("ReturnTo = %q, want /projects", stored.ReturnTo)
	}

	if resp.Header.Get("Cache-Control") == "" || resp.Header.Get("Referrer-Policy") != "no-referrer" {
		t.Error("security headers missing")
	}
}

func TestServeLogin_MethodNotAllowed(t *testing.T) {
	th := setupTestHandler(t, nil)

	rec := httptest.NewRecorder()
	th.handler.ServeLogin(rec, httptest.NewRequest(http.MethodPost, "/auth/apple/login", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestServeLogin_StorageFailure(t *testing.T) {
	th := setupTestHandler(t, &Config{FailureURL: "/signin"})
	th.states.SaveStateFunc = func(context.Context, *storage.AuthorizationState) error {
		return fmt.Errorf("connection refused")
	}

	rec := httptest.NewRecorder()
	th.handler.ServeLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/apple/login", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if got := rec.Header().Get("Location"); got != "/signin?error=authentication_failed" {
		t.Errorf("Location = %q", got)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("no cookie should be set when the login could not start")
	}
}

func TestServeCallback_Success(t *testing.T) {
	th := setupTestHandler(t, nil)
	resp, state := th.login(t, "/projects")

	cb := th.callback(bindingCookie(t, resp), url.Values{
		"code":  {"auth-code"},
		"state": {state},
		"user":  {`{"name":{"firstName":"Ada","lastName":"Lovelace"}}`},
	})

	if cb.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", cb.StatusCode, http.StatusFound)
	}
	if got := cb.Header.Get("Location"); got != "/projects" {
		t.Errorf("Location = %q, want /projects", got)
	}
	if th.users.Calls("UpsertBySubject") != 1 {
		t.Error("user was not stored")
	}

	cleared := bindingCookie(t, cb)
	if cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Errorf("binding cookie not cleared: %+v", cleared)
	}
}

func TestServeCallback_SuccessURL(t *testing.T) {
	th := setupTestHandler(t, &Config{SuccessURL: "https://app.example.com/home"})
	resp, state := th.login(t, "/projects")

	cb := th.callback(bindingCookie(t, resp), url.Values{"code": {"c"}, "state": {state}})

	if got := cb.Header.Get("Location"); got != "https://app.example.com/home" {
		t.Errorf("Location = %q, want the configured success URL", got)
	}
}

func TestServeCallback_SuccessHandler(t *testing.T) {
	var got *LoginResult
	th := setupTestHandler(t, &Config{
		SuccessHandler: func(w http.ResponseWriter, _ *http.Request, result *LoginResult) {
			got = result
			w.WriteHeader(http.StatusNoContent)
		},
	})
	resp, state := th.login(t, "")

	cb := th.callback(bindingCookie(t, resp), url.Values{"code": {"c"}, "state": {state}})

	if cb.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", cb.StatusCode, http.StatusNoContent)
	}
	if got == nil || got.User.ID != "mock-user-123" {
		t.Errorf("SuccessHandler result = %+v", got)
	}
}

func TestServeCallback_GET(t *testing.T) {
	th := setupTestHandler(t, nil)
	resp, state := th.login(t, "")

	req := httptest.NewRequest(http.MethodGet, "/auth/apple/callback?code=c&state="+url.QueryEscape(state), nil)
	req.AddCookie(bindingCookie(t, resp))
	rec := httptest.NewRecorder()
	th.handler.ServeCallback(rec, req)

	if got := rec.Header().Get("Location"); got != "/" {
		t.Errorf("Location = %q, want /", got)
	}
}

func TestServeCallback_Failures(t *testing.T) {
	tests := []struct {
		name       string
		withCookie bool
		form       func(state string) url.Values
		setup      func(th *testHandler)
	}{
		{
			name:       "missing cookie",
			withCookie: false,
			form:       func(state string) url.Values { return url.Values{"code": {"c"}, "state": {state}} },
		},
		{
			name:       "forged state",
			withCookie: true,
			form:       func(string) url.Values { return url.Values{"code": {"c"}, "state": {"forged"}} },
		},
		{
			name:       "user cancelled",
			withCookie: true,
			form: func(state string) url.Values {
				return url.Values{"error": {"user_cancelled_authorize"}, "state": {state}}
			},
		},
		{
			name:       "token exchange rejected",
			withCookie: true,
			form:       func(state string) url.Values { return url.Values{"code": {"c"}, "state": {state}} },
			setup: func(th *testHandler) {
				th.provider.ExchangeCodeFunc = func(context.Context, string) (*oauth2.Token, error) {
					return nil, &providers.TokenExchangeError{StatusCode: 400, ErrorCode: "invalid_grant", Body: `{"error":"invalid_grant"}`}
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := setupTestHandler(t, nil)
			if tt.setup != nil {
				tt.setup(th)
			}
			resp, state := th.login(t, "/projects")

			var cookie *http.Cookie
			if tt.withCookie {
				cookie = bindingCookie(t, resp)
			}
			cb := th.callback(cookie, tt.form(state))

			if cb.StatusCode != http.StatusFound {
				t.Fatalf("status = %d, want %d", cb.StatusCode, http.StatusFound)
			}
			location := cb.Header.Get("Location")
			if location != "/login?error=authentication_failed" {
				t.Errorf("Location = %q, want the generic failure redirect", location)
			}
			if th.users.Calls("UpsertBySubject") != 0 {
				t.Error("no user must be stored on failure")
			}
		})
	}
}

func TestServeCallback_Replay(t *testing.T) {
	th := setupTestHandler(t, nil)
	resp, state := th.login(t, "/")
	cookie := bindingCookie(t, resp)
	form := url.Values{"code": {"c"}, "state": {state}}

	if got := th.callback(cookie, form).Header.Get("Location"); got != "/" {
		t.Fatalf("first callback Location = %q", got)
	}
	if got := th.callback(cookie, form).Header.Get("Location"); got != "/login?error=authentication_failed" {
		t.Errorf("replayed callback Location = %q", got)
	}
	if n := th.provider.GetCallCount("ExchangeCode"); n != 1 {
		t.Errorf("ExchangeCode calls = %d, want 1", n)
	}
}

func TestServeCallback_MethodNotAllowed(t *testing.T) {
	th := setupTestHandler(t, nil)

	rec := httptest.NewRecorder()
	th.handler.ServeCallback(rec, httptest.NewRequest(http.MethodPut, "/auth/apple/callback", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestRegisterRoutes_RateLimit(t *testing.T) {
	th := setupTestHandler(t, &Config{RateLimit: RateLimitConfig{Rate: 0.001, Burst: 2}})
	mux := http.NewServeMux()
	th.handler.RegisterRoutes(mux, "/auth/apple/login", "/auth/apple/callback")

	statuses := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/auth/apple/login", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)

		if rec.Header().Get(security.RequestIDHeader) == "" {
			t.Error("request ID header missing")
		}
	}

	want := []int{http.StatusFound, http.StatusFound, http.StatusTooManyRequests}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i, statuses[i], want[i])
		}
	}

	// Another client is not affected
	req := httptest.NewRequest(http.MethodGet, "/auth/apple/login", nil)
	req.RemoteAddr = "198.51.100.9:40000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Errorf("other client status = %d, want %d", rec.Code, http.StatusFound)
	}
}

func TestFailureRedirect(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"/login", "/login?error=authentication_failed"},
		{"/login?next=%2F", "/login?error=authentication_failed&next=%2F"},
		{"https://app.example.com/signin", "https://app.example.com/signin?error=authentication_failed"},
	}

	for _, tt := range tests {
		if got := failureRedirect(tt.base, ErrorCodeAuthenticationFailed); got != tt.want {
			t.Errorf("failureRedirect(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	h := NewHandler(mustServer(t), nil)
	defer h.Stop()

	if h.config.FailureURL != DefaultFailureURL || h.config.Cookie.Name != DefaultCookieName {
		t.Errorf("defaults not applied: %+v", h.config)
	}
	if h.config.Cookie.MaxAge != DefaultCookieMaxAge {
		t.Errorf("Cookie.MaxAge = %v, want %v", h.config.Cookie.MaxAge, DefaultCookieMaxAge)
	}
	if h.rateLimiter != nil {
		t.Error("rate limiting must be off without a rate")
	}

	cfg := &Config{RateLimit: RateLimitConfig{Rate: 5}}
	cfg.applyDefaults()
	if cfg.RateLimit.Burst != 6 {
		t.Errorf("Burst = %d, want 6", cfg.RateLimit.Burst)
	}
}

func mustServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(mock.NewMockProvider(), storagemock.NewMockStateStore(), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}
