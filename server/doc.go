// Package server dispatches HTTP requests to WAGI handlers.
//
// New performs the last stage of startup: it registers the runner,
// invokes each module's optional _routes export to discover sub-routes,
// and freezes the routing table. The resulting Server is an
// http.Handler safe for concurrent use; per request it matches a route,
// builds the CGI environment, reads the whole body, runs the module on a
// fresh instance, and translates the parsed CGI output into the HTTP
// response.
//
// Failures are recovered into statuses and never propagate: 404 for a
// routing miss, 413 for an oversize body, 500 for traps with unusable
// output, 502 for malformed CGI output, 504 for an enforced deadline.
package server
