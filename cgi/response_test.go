package cgi

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/wippyai/wagi/errors"
)

func TestParseResponse(t *testing.T) {
	t.Run("content_type_and_body", func(t *testing.T) {
		resp, err := ParseResponse([]byte("content-type: text/plain\n\nhi"))
		if err != nil {
			t.Fatalf("ParseResponse failed: %v", err)
		}
		if resp.Status != 200 {
			t.Errorf("Status = %d, want 200", resp.Status)
		}
		if len(resp.Headers) != 1 || resp.Headers[0].Name != "Content-Type" || resp.Headers[0].Value != "text/plain" {
			t.Errorf("Headers = %v", resp.Headers)
		}
		if string(resp.Body) != "hi" {
			t.Errorf("Body = %q, want hi", resp.Body)
		}
	})

	t.Run("status_header", func(t *testing.T) {
		resp, err := ParseResponse([]byte("content-type: text/plain\nstatus: 404 Not Found\n\nmissing"))
		if err != nil {
			t.Fatalf("ParseResponse failed: %v", err)
		}
		if resp.Status != 404 {
			t.Errorf("Status = %d, want 404", resp.Status)
		}
		if string(resp.Body) != "missing" {
			t.Errorf("Body = %q", resp.Body)
		}
	})

	t.Run("absolute_location_redirects", func(t *testing.T) {
		resp, err := ParseResponse([]byte("location: https://example.com/a\n\n"))
		if err != nil {
			t.Fatalf("ParseResponse failed: %v", err)
		}
		if resp.Status != 302 {
			t.Errorf("Status = %d, want 302", resp.Status)
		}
		if len(resp.Body) != 0 {
			t.Errorf("Body = %q, want empty", resp.Body)
		}
	})

	t.Run("later_status_overrides_location", func(t *testing.T) {
		resp, err := ParseResponse([]byte("location: https://example.com/a\nstatus: 301\n\n"))
		if err != nil {
			t.Fatalf("ParseResponse failed: %v", err)
		}
		if resp.Status != 301 {
			t.Errorf("Status = %d, want 301", resp.Status)
		}
	})

	t.Run("crlf_line_endings", func(t *testing.T) {
		resp, err := ParseResponse([]byte("content-type: text/html\r\nx-extra: 1\r\n\r\n<p>"))
		if err != nil {
			t.Fatalf("ParseResponse failed: %v", err)
		}
		if string(resp.Body) != "<p>" {
			t.Errorf("Body = %q", resp.Body)
		}
		if len(resp.Headers) != 2 {
			t.Errorf("Headers = %v", resp.Headers)
		}
	})

	t.Run("passthrough_headers_keep_order", func(t *testing.T) {
		resp, err := ParseResponse([]byte("x-one: 1\ncontent-type: a/b\nx-two: 2\n\n"))
		if err != nil {
			t.Fatalf("ParseResponse failed: %v", err)
		}
		names := []string{"x-one", "Content-Type", "x-two"}
		for i, want := range names {
			if resp.Headers[i].Name != want {
				t.Errorf("Headers[%d].Name = %q, want %q", i, resp.Headers[i].Name, want)
			}
		}
	})

	t.Run("headers_without_body", func(t *testing.T) {
		resp, err := ParseResponse([]byte("content-type: text/plain\n"))
		if err != nil {
			t.Fatalf("ParseResponse failed: %v", err)
		}
		if len(resp.Body) != 0 {
			t.Errorf("Body = %q, want empty", resp.Body)
		}
	})

	t.Run("body_keeps_blank_lines", func(t *testing.T) {
		body := "line1\r\n\r\nline2"
		resp, err := ParseResponse([]byte("content-type: text/plain\n\n" + body))
		if err != nil {
			t.Fatalf("ParseResponse failed: %v", err)
		}
		if string(resp.Body) != body {
			t.Errorf("Body = %q, want %q", resp.Body, body)
		}
	})
}

func TestParseResponseErrors(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
	}{
		{"empty_output", ""},
		{"no_header_block", "just some bytes with no headers"},
		{"missing_content_type_and_location", "x-other: 1\n\nbody"},
		{"status_alone_is_insufficient", "status: 204\n\n"},
		{"relative_location", "location: /local/path\n\n"},
		{"malformed_header_line", "content-type text/plain\n\n"},
		{"invalid_status", "content-type: a/b\nstatus: abc\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse([]byte(tt.stdout))
			if err == nil {
				t.Fatal("expected error")
			}
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Phase != errors.PhaseCGI {
				t.Errorf("error %v is not a cgi-phase error", err)
			}
		})
	}
}

func TestParseResponseRoundTrip(t *testing.T) {
	// Concatenating "name: value" CRLF lines, a blank line and a body
	// parses back to exactly those headers and body.
	headers := []Header{
		{"Content-Type", "application/json"},
		{"X-A", "1"},
		{"X-B", "two words"},
	}
	body := []byte(`{"k":"v"}`)

	var buf bytes.Buffer
	for _, h := range headers {
		buf.WriteString(h.Name + ": " + h.Value + "\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(body)

	resp, err := ParseResponse(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if len(resp.Headers) != len(headers) {
		t.Fatalf("Headers = %v, want %v", resp.Headers, headers)
	}
	for i, want := range headers {
		if resp.Headers[i] != want {
			t.Errorf("Headers[%d] = %v, want %v", i, resp.Headers[i], want)
		}
	}
	if !bytes.Equal(resp.Body, body) {
		t.Errorf("Body = %q, want %q", resp.Body, body)
	}
}
