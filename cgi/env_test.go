package cgi

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wippyai/wagi/route"
)

func mustPattern(t *testing.T, s string) route.Pattern {
	t.Helper()
	p, err := route.ParsePattern(s)
	if err != nil {
		t.Fatalf("ParsePattern(%q): %v", s, err)
	}
	return p
}

func TestBuildEnvBasics(t *testing.T) {
	r := httptest.NewRequest("POST", "http://example.com:3000/hello?a=1&b=2", strings.NewReader("body"))
	r.Header.Set("Content-Type", "text/plain")
	r.Header.Set("X-Custom-Header", "yes")
	r.RemoteAddr = "192.0.2.7:51234"

	env := BuildEnv(r, mustPattern(t, "/hello"), "", 4, "localhost:3000", nil)

	want := map[string]string{
		"REQUEST_METHOD":       "POST",
		"QUERY_STRING":         "a=1&b=2",
		"CONTENT_LENGTH":       "4",
		"CONTENT_TYPE":         "text/plain",
		"SCRIPT_NAME":          "/hello",
		"PATH_INFO":            "",
		"X_MATCHED_ROUTE":      "/hello",
		"X_RELATIVE_PATH":      "",
		"X_FULL_URL":           "http://example.com:3000/hello?a=1&b=2",
		"SERVER_NAME":          "example.com",
		"SERVER_PORT":          "3000",
		"SERVER_PROTOCOL":      "HTTP/1.1",
		"SERVER_SOFTWARE":      "WAGI/1",
		"GATEWAY_INTERFACE":    "CGI/1.1",
		"REMOTE_ADDR":          "192.0.2.7",
		"HTTP_X_CUSTOM_HEADER": "yes",
	}
	for k, v := range want {
		if env[k] != v {
			t.Errorf("env[%q] = %q, want %q", k, env[k], v)
		}
	}
}

func TestBuildEnvWildcard(t *testing.T) {
	r := httptest.NewRequest("GET", "http://h/s/a/b", nil)
	env := BuildEnv(r, mustPattern(t, "/s/..."), "a/b", 0, "h", nil)

	if env["PATH_INFO"] != "/a/b" {
		t.Errorf("PATH_INFO = %q, want /a/b", env["PATH_INFO"])
	}
	if env["X_MATCHED_ROUTE"] != "/s/..." {
		t.Errorf("X_MATCHED_ROUTE = %q", env["X_MATCHED_ROUTE"])
	}
	if env["X_RELATIVE_PATH"] != "a/b" {
		t.Errorf("X_RELATIVE_PATH = %q", env["X_RELATIVE_PATH"])
	}
	if env["SCRIPT_NAME"] != "/s" {
		t.Errorf("SCRIPT_NAME = %q", env["SCRIPT_NAME"])
	}
}

func TestBuildEnvPathTranslated(t *testing.T) {
	r := httptest.NewRequest("GET", "http://h/s/a%20b", nil)
	env := BuildEnv(r, mustPattern(t, "/s/..."), "a%20b", 0, "h", nil)
	if env["PATH_TRANSLATED"] != "/a b" {
		t.Errorf("PATH_TRANSLATED = %q, want %q", env["PATH_TRANSLATED"], "/a b")
	}
}

func TestBuildEnvSkipsCredentialHeaders(t *testing.T) {
	r := httptest.NewRequest("GET", "http://h/x", nil)
	r.Header.Set("Authorization", "Bearer secret")
	r.Header.Set("Connection", "keep-alive")
	env := BuildEnv(r, mustPattern(t, "/x"), "", 0, "h", nil)
	if _, ok := env["HTTP_AUTHORIZATION"]; ok {
		t.Error("HTTP_AUTHORIZATION must not be published")
	}
	if _, ok := env["HTTP_CONNECTION"]; ok {
		t.Error("HTTP_CONNECTION must not be published")
	}
}

func TestBuildEnvBuiltinsWinOverConfig(t *testing.T) {
	r := httptest.NewRequest("GET", "http://h/x", nil)
	env := BuildEnv(r, mustPattern(t, "/x"), "", 0, "h", map[string]string{
		"REQUEST_METHOD": "SPOOFED",
		"MY_VAR":         "kept",
	})
	if env["REQUEST_METHOD"] != "GET" {
		t.Errorf("REQUEST_METHOD = %q, configuration must not shadow built-ins", env["REQUEST_METHOD"])
	}
	if env["MY_VAR"] != "kept" {
		t.Errorf("MY_VAR = %q, want kept", env["MY_VAR"])
	}
}

func TestBuildEnvDefaultHost(t *testing.T) {
	r := httptest.NewRequest("GET", "/x", nil)
	r.Host = ""
	env := BuildEnv(r, mustPattern(t, "/x"), "", 0, "fallback.example:8080", nil)
	if env["SERVER_NAME"] != "fallback.example" || env["SERVER_PORT"] != "8080" {
		t.Errorf("SERVER_NAME:PORT = %s:%s", env["SERVER_NAME"], env["SERVER_PORT"])
	}
}

func TestBuildEnvFullURLRoundTrip(t *testing.T) {
	// Rebuilding X_FULL_URL must preserve the request's normalized path.
	r := httptest.NewRequest("GET", "http://h:90/a/b%20c?q=1", nil)
	env := BuildEnv(r, mustPattern(t, "/a/..."), "b%20c", 0, "h:90", nil)
	if got := env["X_FULL_URL"]; got != "http://h:90/a/b%20c?q=1" {
		t.Errorf("X_FULL_URL = %q", got)
	}
}

func TestArgs(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want []string
	}{
		{"no_query", "http://h/p", []string{"/p"}},
		{"query_tokens", "http://h/p?a=1&b=2", []string{"/p", "a=1", "b=2"}},
		{"bare_token", "http://h/p?flag", []string{"/p", "flag"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			got := Args(r)
			if len(got) != len(tt.want) {
				t.Fatalf("Args = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Args[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
