package server

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/wagi/engine"
	"github.com/wippyai/wagi/route"
	"github.com/wippyai/wagi/wat"
)

// printerWAT builds a guest whose exports each write a fixed string to
// stdout via fd_write.
func printerWAT(exports map[string]string) string {
	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(`(module
	(import "wasi_snapshot_preview1" "fd_write"
		(func $fd_write (param i32 i32 i32 i32) (result i32)))
	(memory (export "memory") 1)
`)
	offset := 64
	offsets := make(map[string]int)
	for _, name := range names {
		data := exports[name]
		offsets[name] = offset
		fmt.Fprintf(&b, "\t(data (i32.const %d) \"%s\")\n", offset, escapeWAT(data))
		offset += len(data) + 8
	}
	for _, name := range names {
		data := exports[name]
		fmt.Fprintf(&b, `	(func (export "%s")
		(i32.store (i32.const 0) (i32.const %d))
		(i32.store (i32.const 4) (i32.const %d))
		(call $fd_write (i32.const 1) (i32.const 0) (i32.const 1) (i32.const 8))
		drop)
`, name, offsets[name], len(data))
	}
	b.WriteString(")")
	return b.String()
}

func escapeWAT(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return r.Replace(s)
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	eng, err := engine.New(ctx, engine.Config{})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	t.Cleanup(func() { eng.Close(ctx) })
	return eng
}

func handlerFor(t *testing.T, eng *engine.Engine, pattern, watSrc string) *route.Handler {
	t.Helper()
	bin, err := wat.Compile(watSrc)
	if err != nil {
		t.Fatalf("wat.Compile failed: %v", err)
	}
	mod, err := eng.Load(context.Background(), pattern, bin)
	if err != nil {
		t.Fatalf("engine.Load failed: %v", err)
	}
	p, err := route.ParsePattern(pattern)
	if err != nil {
		t.Fatalf("ParsePattern failed: %v", err)
	}
	return &route.Handler{Pattern: p, Module: mod, Entrypoint: route.DefaultEntrypoint}
}

func buildServer(t *testing.T, eng *engine.Engine, opts Options, handlers ...*route.Handler) *Server {
	t.Helper()
	srv, err := New(context.Background(), eng, handlers, opts)
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}
	return srv
}

func TestHelloWorld(t *testing.T) {
	eng := newTestEngine(t)
	h := handlerFor(t, eng, "/hello", printerWAT(map[string]string{
		"_start": "content-type: text/plain\n\nhi",
	}))
	srv := buildServer(t, eng, Options{DefaultHost: "localhost"}, h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "http://localhost/hello", nil))

	if rec.Code != 200 {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.String() != "hi" {
		t.Errorf("body = %q, want hi", rec.Body.String())
	}
}

func TestGuestSetsStatus(t *testing.T) {
	eng := newTestEngine(t)
	h := handlerFor(t, eng, "/x", printerWAT(map[string]string{
		"_start": "content-type: text/plain\nstatus: 404\n\nmissing",
	}))
	srv := buildServer(t, eng, Options{}, h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "http://h/x", nil))

	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec.Body.String() != "missing" {
		t.Errorf("body = %q, want missing", rec.Body.String())
	}
}

func TestGuestRedirect(t *testing.T) {
	eng := newTestEngine(t)
	h := handlerFor(t, eng, "/r", printerWAT(map[string]string{
		"_start": "location: https://example.com/a\n\n",
	}))
	srv := buildServer(t, eng, Options{}, h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "http://h/r", nil))

	if rec.Code != 302 {
		t.Errorf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/a" {
		t.Errorf("Location = %q", loc)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestRoutingMiss(t *testing.T) {
	eng := newTestEngine(t)
	h := handlerFor(t, eng, "/hello", printerWAT(map[string]string{
		"_start": "content-type: text/plain\n\nhi",
	}))
	srv := buildServer(t, eng, Options{}, h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "http://h/nope", nil))

	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("404 must have no body, got %q", rec.Body.String())
	}
}

func TestHealthRoute(t *testing.T) {
	eng := newTestEngine(t)
	h := handlerFor(t, eng, "/hello", printerWAT(map[string]string{
		"_start": "content-type: text/plain\n\nhi",
	}))
	srv := buildServer(t, eng, Options{}, h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "http://h/healthz", nil))
	if rec.Code != 200 || rec.Body.String() != "OK" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestHealthRouteShadowedByConfig(t *testing.T) {
	eng := newTestEngine(t)
	h := handlerFor(t, eng, "/healthz", printerWAT(map[string]string{
		"_start": "content-type: text/plain\n\ncustom health",
	}))
	srv := buildServer(t, eng, Options{}, h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "http://h/healthz", nil))
	if rec.Body.String() != "custom health" {
		t.Errorf("configured route must win: %q", rec.Body.String())
	}
}

func TestOversizeBody(t *testing.T) {
	eng := newTestEngine(t)
	h := handlerFor(t, eng, "/up", printerWAT(map[string]string{
		"_start": "content-type: text/plain\n\nok",
	}))
	srv := buildServer(t, eng, Options{MaxRequestBody: 4}, h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("POST", "http://h/up", strings.NewReader("way too large")))
	if rec.Code != 413 {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestTrapGivesServerError(t *testing.T) {
	eng := newTestEngine(t)
	h := handlerFor(t, eng, "/boom", `(module (func (export "_start") unreachable))`)
	srv := buildServer(t, eng, Options{}, h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "http://h/boom", nil))
	if rec.Code != 500 {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("500 must have empty body, got %q", rec.Body.String())
	}
}

func TestTrapAfterUsableOutput(t *testing.T) {
	// A guest that wrote a complete response before trapping still gets
	// its response delivered.
	eng := newTestEngine(t)
	watSrc := `(module
	(import "wasi_snapshot_preview1" "fd_write"
		(func $fd_write (param i32 i32 i32 i32) (result i32)))
	(memory (export "memory") 1)
	(data (i32.const 64) "content-type: text/plain\n\npartial")
	(func (export "_start")
		(i32.store (i32.const 0) (i32.const 64))
		(i32.store (i32.const 4) (i32.const 33))
		(call $fd_write (i32.const 1) (i32.const 0) (i32.const 1) (i32.const 8))
		drop
		unreachable))`
	h := handlerFor(t, eng, "/partial", watSrc)
	srv := buildServer(t, eng, Options{}, h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "http://h/partial", nil))
	if rec.Code != 200 {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "partial" {
		t.Errorf("body = %q, want partial", rec.Body.String())
	}
}

func TestMalformedOutputIsGatewayError(t *testing.T) {
	eng := newTestEngine(t)
	h := handlerFor(t, eng, "/bad", printerWAT(map[string]string{
		"_start": "x-other: 1\n\nno content type",
	}))
	srv := buildServer(t, eng, Options{}, h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "http://h/bad", nil))
	if rec.Code != 502 {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestRequestTimeout(t *testing.T) {
	eng := newTestEngine(t)
	h := handlerFor(t, eng, "/spin", `(module (func (export "_start") (loop $l (br $l))))`)
	srv := buildServer(t, eng, Options{RequestTimeout: 100 * time.Millisecond}, h)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "http://h/spin", nil))
	if rec.Code != 504 {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}

func TestSubRouteDiscovery(t *testing.T) {
	eng := newTestEngine(t)
	h := handlerFor(t, eng, "/m", printerWAT(map[string]string{
		"_start":  "content-type: text/plain\n\nroot-body",
		"_routes": "/hi hello\n/bye/... bye\n",
		"hello":   "content-type: text/plain\n\nhello-body",
		"bye":     "content-type: text/plain\n\nbye-body",
	}))
	srv := buildServer(t, eng, Options{}, h)

	tests := []struct {
		path string
		body string
	}{
		{"/m/hi", "hello-body"},
		{"/m/bye/now", "bye-body"},
		{"/m", "root-body"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest("GET", "http://h"+tt.path, nil))
		if rec.Code != 200 {
			t.Errorf("GET %s status = %d", tt.path, rec.Code)
		}
		if rec.Body.String() != tt.body {
			t.Errorf("GET %s body = %q, want %q", tt.path, rec.Body.String(), tt.body)
		}
	}
}

func TestSubRouteDiscoveryBadOutputAbortsStartup(t *testing.T) {
	eng := newTestEngine(t)
	h := handlerFor(t, eng, "/m", printerWAT(map[string]string{
		"_start":  "content-type: text/plain\n\nroot",
		"_routes": "/only-one-column\n",
	}))
	if _, err := New(context.Background(), eng, []*route.Handler{h}, Options{}); err == nil {
		t.Error("expected startup to abort on malformed _routes output")
	}
}

func TestSubRouteUnknownEntrypointAbortsStartup(t *testing.T) {
	eng := newTestEngine(t)
	h := handlerFor(t, eng, "/m", printerWAT(map[string]string{
		"_start":  "content-type: text/plain\n\nroot",
		"_routes": "/hi no_such_export\n",
	}))
	if _, err := New(context.Background(), eng, []*route.Handler{h}, Options{}); err == nil {
		t.Error("expected startup to abort on unknown sub-route entrypoint")
	}
}
