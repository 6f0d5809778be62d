package cgi

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/wippyai/wagi/errors"
)

// Header is one response header in guest-emitted order.
type Header struct {
	Name  string
	Value string
}

// Response is the parsed form of a guest's stdout.
type Response struct {
	Status  int
	Headers []Header // pass-through headers, Status excluded
	Body    []byte
}

// ParseResponse parses CGI output: a header block terminated by a blank
// line, then an opaque body. Header names are case-insensitive and values
// trimmed. One of Content-Type or Location must be present; Status
// defaults to 200; an absolute Location sets 302 unless a Status header
// appears anywhere in the block. Violations return a *errors.Error in the cgi phase,
// which the dispatcher reports as 502.
func ParseResponse(stdout []byte) (*Response, error) {
	headerBlock, body, ok := splitHeaderBlock(stdout)
	if !ok {
		return nil, errors.MalformedOutput("no blank line terminating the header block")
	}

	resp := &Response{Status: 0, Body: body}
	sufficient := false

	for _, line := range strings.Split(headerBlock, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return nil, errors.MalformedOutput("malformed header line %q", line)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" {
			return nil, errors.MalformedOutput("malformed header line %q", line)
		}

		switch strings.ToLower(name) {
		case "status":
			// Status: NNN [reason] - only the code is kept.
			code := value
			if c, _, found := strings.Cut(value, " "); found {
				code = c
			}
			n, err := strconv.Atoi(code)
			if err != nil || n < 100 || n > 599 {
				return nil, errors.MalformedOutput("invalid status %q", value)
			}
			resp.Status = n

		case "location":
			u, err := url.Parse(value)
			if err != nil || !u.IsAbs() || u.Host == "" {
				return nil, errors.MalformedOutput("location %q is not an absolute URL", value)
			}
			sufficient = true
			resp.Headers = append(resp.Headers, Header{Name: "Location", Value: value})
			if resp.Status == 0 {
				resp.Status = 302
			}

		case "content-type":
			sufficient = true
			resp.Headers = append(resp.Headers, Header{Name: "Content-Type", Value: value})

		default:
			resp.Headers = append(resp.Headers, Header{Name: name, Value: value})
		}
	}

	if !sufficient {
		return nil, errors.MalformedOutput("one of 'content-type' or 'location' must be present")
	}
	if resp.Status == 0 {
		resp.Status = 200
	}
	return resp, nil
}

// splitHeaderBlock cuts stdout at the first blank line, tolerating both
// LF and CRLF line endings. The body keeps its exact bytes.
func splitHeaderBlock(data []byte) (headers string, body []byte, ok bool) {
	crlf := bytes.Index(data, []byte("\n\r\n"))
	lf := bytes.Index(data, []byte("\n\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return string(data[:crlf]), data[crlf+3:], true
	case lf >= 0:
		return string(data[:lf]), data[lf+2:], true
	}
	// Headers with no body and no trailing blank line are still usable
	// when the output ends with a newline.
	if len(data) > 0 && data[len(data)-1] == '\n' {
		return string(data), nil, true
	}
	return "", nil, false
}
