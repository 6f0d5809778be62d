package cgi

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/wippyai/wagi/route"
	"github.com/wippyai/wagi/version"
)

// BuildEnv constructs the CGI environment for a request matched to a
// route. base is the handler's static environment (global overlay already
// applied); the CGI meta-variables are written over it so configuration
// can never shadow a built-in.
func BuildEnv(r *http.Request, matched route.Pattern, tail string, bodyLen int, defaultHost string, base map[string]string) map[string]string {
	env := make(map[string]string, len(base)+24)
	for k, v := range base {
		env[k] = v
	}

	host := r.Host
	if host == "" {
		host = defaultHost
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	serverName, serverPort := splitHostPort(host, scheme)

	scriptName := matched.Prefix()
	pathInfo := strings.TrimPrefix(r.URL.Path, scriptName)
	if r.URL.Path == scriptName {
		pathInfo = ""
	}
	pathTranslated := pathInfo
	if unescaped, err := url.PathUnescape(pathInfo); err == nil {
		pathTranslated = unescaped
	}

	fullURL := scheme + "://" + host + r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		fullURL += "?" + r.URL.RawQuery
	}

	env["AUTH_TYPE"] = ""
	env["CONTENT_LENGTH"] = strconv.Itoa(bodyLen)
	env["CONTENT_TYPE"] = r.Header.Get("Content-Type")
	env["GATEWAY_INTERFACE"] = version.GatewayInterface
	env["PATH_INFO"] = pathInfo
	env["PATH_TRANSLATED"] = pathTranslated
	env["QUERY_STRING"] = r.URL.RawQuery
	env["REMOTE_ADDR"] = remoteIP(r.RemoteAddr)
	env["REMOTE_HOST"] = remoteIP(r.RemoteAddr) // substituted with REMOTE_ADDR, as RFC 3875 allows
	env["REMOTE_USER"] = ""
	env["REQUEST_METHOD"] = r.Method
	env["SCRIPT_NAME"] = scriptName
	env["SERVER_NAME"] = serverName
	env["SERVER_PORT"] = serverPort
	env["SERVER_PROTOCOL"] = version.ServerProtocol
	env["SERVER_SOFTWARE"] = version.ServerSoftware
	env["X_FULL_URL"] = fullURL
	env["X_MATCHED_ROUTE"] = matched.String()
	env["X_RELATIVE_PATH"] = tail

	for name, values := range r.Header {
		// RFC 3875 4.1.18 excludes connection-oriented and credential headers.
		if name == "Authorization" || name == "Connection" {
			continue
		}
		key := "HTTP_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		env[key] = strings.Join(values, ", ")
	}

	return env
}

// Args builds the guest's argv: the request path followed by the query
// string decomposed at '&'. No shell-style quoting is applied.
func Args(r *http.Request) []string {
	args := []string{r.URL.Path}
	if r.URL.RawQuery != "" {
		args = append(args, strings.Split(r.URL.RawQuery, "&")...)
	}
	return args
}

func splitHostPort(host, scheme string) (name, port string) {
	if h, p, err := net.SplitHostPort(host); err == nil {
		return h, p
	}
	if scheme == "https" {
		return host, "443"
	}
	return host, "80"
}

func remoteIP(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}
