package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfig   Phase = "config"   // manifest / invoice loading
	PhaseResolve  Phase = "resolve"  // module reference to bytes
	PhaseCompile  Phase = "compile"  // engine pre-compilation
	PhaseDiscover Phase = "discover" // _routes sub-route discovery
	PhaseRoute    Phase = "route"    // routing table construction and matching
	PhaseRun      Phase = "run"      // guest execution
	PhaseCGI      Phase = "cgi"      // CGI env building / response parsing
	PhaseHTTP     Phase = "http"     // outbound HTTP capability
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindDuplicateRoute    Kind = "duplicate_route"
	KindUnreachableVolume Kind = "unreachable_volume"
	KindHashMismatch      Kind = "hash_mismatch"
	KindMediaType         Kind = "media_type"
	KindDenied            Kind = "denied"
	KindTrap              Kind = "trap"
	KindTimeout           Kind = "timeout"
	KindMalformedOutput   Kind = "malformed_output"
	KindInstantiation     Kind = "instantiation"
	KindUnsupported       Kind = "unsupported"
	KindIO                Kind = "io"
)

// Error is the structured error type used throughout the server
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Route  string // offending route pattern, if known
	Ref    string // offending module reference, if known
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Route != "" {
		b.WriteString(" route ")
		b.WriteString(e.Route)
	}
	if e.Ref != "" {
		b.WriteString(" module ")
		b.WriteString(e.Ref)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// WithRoute returns a copy of the error annotated with the offending route.
func (e *Error) WithRoute(route string) *Error {
	c := *e
	c.Route = route
	return &c
}

// WithRef returns a copy of the error annotated with the offending module reference.
func (e *Error) WithRef(ref string) *Error {
	c := *e
	c.Ref = ref
	return &c
}

// Convenience constructors for common error patterns

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{Phase: phase, Kind: KindInvalidInput, Detail: detail}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// DuplicateRoute creates a duplicate route error
func DuplicateRoute(route string) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindDuplicateRoute,
		Route:  route,
		Detail: "route is configured more than once",
	}
}

// UnreachableVolume creates an error for a volume host path that does not resolve
func UnreachableVolume(route, guest, host string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindUnreachableVolume,
		Route:  route,
		Detail: fmt.Sprintf("volume %s -> %s", guest, host),
		Cause:  cause,
	}
}

// HashMismatch creates a parcel content hash mismatch error
func HashMismatch(ref, want, got string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindHashMismatch,
		Ref:    ref,
		Detail: fmt.Sprintf("content hash %s does not match invoice label %s", got, want),
	}
}

// MediaType creates an error for an OCI image with no Wasm layer
func MediaType(ref, want string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindMediaType,
		Ref:    ref,
		Detail: fmt.Sprintf("no layer with media type %s", want),
	}
}

// Trap creates a guest execution failure error
func Trap(detail string, cause error) *Error {
	return &Error{Phase: PhaseRun, Kind: KindTrap, Detail: detail, Cause: cause}
}

// Timeout creates a deadline-exceeded execution error
func Timeout(detail string) *Error {
	return &Error{Phase: PhaseRun, Kind: KindTimeout, Detail: detail}
}

// MalformedOutput creates a CGI response parsing error
func MalformedOutput(detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{Phase: PhaseCGI, Kind: KindMalformedOutput, Detail: detail}
}

// Instantiation creates a module instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRun,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{Phase: phase, Kind: KindUnsupported, Detail: what}
}

// IO wraps a filesystem or network failure
func IO(phase Phase, detail string, cause error) *Error {
	return &Error{Phase: phase, Kind: KindIO, Detail: detail, Cause: cause}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{Phase: phase, Kind: kind, Detail: detail, Cause: cause}
}

// Fatal reports whether the error belongs to a startup phase, where the
// server must refuse to come up rather than recover.
func Fatal(err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	switch e.Phase {
	case PhaseConfig, PhaseResolve, PhaseCompile, PhaseDiscover:
		return true
	}
	return false
}
