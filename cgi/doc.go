// Package cgi translates between HTTP and the CGI 1.1 conventions that
// WAGI guests speak.
//
// BuildEnv maps an HTTP request onto the canonical CGI meta-variables
// (RFC 3875) plus the WAGI-specific X_MATCHED_ROUTE, X_RELATIVE_PATH and
// X_FULL_URL variables. ParseResponse parses a guest's stdout — a header
// block terminated by a blank line, then an opaque body — into a status,
// ordered headers, and body bytes.
package cgi
