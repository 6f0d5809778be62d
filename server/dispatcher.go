package server

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wagi/cgi"
	"github.com/wippyai/wagi/errors"
	"github.com/wippyai/wagi/runner"
)

// ServeHTTP is the public entry point from the HTTP collaborator. One
// matched route means exactly one module instance; misses create none.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := r.URL.Path

	h, tail, ok := s.table.Match(path)
	if !ok {
		if path == HealthRoute {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("OK"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		s.logRequest(r, "", http.StatusNotFound, start, nil)
		return
	}

	body, err := readBody(r, s.maxBody)
	if err != nil {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		s.logRequest(r, h.Pattern.String(), http.StatusRequestEntityTooLarge, start, err)
		return
	}

	env := cgi.BuildEnv(r, h.Pattern, tail, len(body), s.opts.DefaultHost, h.Environment)
	args := cgi.Args(r)

	// A disconnecting client must not abort an in-flight guest; its
	// output is simply discarded when the write fails. Only the optional
	// wall-clock deadline interrupts execution.
	ctx := context.WithoutCancel(r.Context())
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	res, err := s.runner.Run(ctx, h, body, env, args)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		s.logRequest(r, h.Pattern.String(), http.StatusInternalServerError, start, err)
		return
	}

	status := s.writeGuestResponse(w, res)
	s.logRequest(r, h.Pattern.String(), status, start, res.Err)
}

// writeGuestResponse translates the run result into the HTTP response
// and returns the status it sent.
func (s *Server) writeGuestResponse(w http.ResponseWriter, res *runner.Result) int {
	if !res.ExitOK {
		var e *errors.Error
		if stderrors.As(res.Err, &e) && e.Kind == errors.KindTimeout {
			w.WriteHeader(http.StatusGatewayTimeout)
			return http.StatusGatewayTimeout
		}
	}

	parsed, parseErr := cgi.ParseResponse(res.Stdout)
	if parseErr != nil {
		// A failed guest with unusable output is a plain server error;
		// a clean guest that wrote garbage is a gateway error.
		status := http.StatusBadGateway
		if !res.ExitOK {
			status = http.StatusInternalServerError
		}
		w.WriteHeader(status)
		return status
	}

	for _, hdr := range parsed.Headers {
		w.Header().Add(hdr.Name, hdr.Value)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(parsed.Body)))
	w.WriteHeader(parsed.Status)
	if len(parsed.Body) > 0 {
		_, _ = w.Write(parsed.Body)
	}
	return parsed.Status
}

// readBody buffers the whole request body, enforcing the size limit.
func readBody(r *http.Request, max int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, max+1))
	if err != nil {
		return nil, errors.IO(errors.PhaseRoute, "read request body", err)
	}
	if int64(len(body)) > max {
		return nil, errors.InvalidInput(errors.PhaseRoute, "request body exceeds %d bytes", max)
	}
	return body, nil
}

func (s *Server) logRequest(r *http.Request, matched string, status int, start time.Time, runErr error) {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("route", matched),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)),
	}
	if runErr != nil {
		fields = append(fields, zap.Error(runErr))
		s.log.Warn("request", fields...)
		return
	}
	s.log.Info("request", fields...)
}
