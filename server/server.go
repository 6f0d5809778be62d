package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wagi/engine"
	"github.com/wippyai/wagi/errors"
	"github.com/wippyai/wagi/route"
	"github.com/wippyai/wagi/runner"
)

// DefaultMaxRequestBody bounds request bodies when Options leaves the
// limit unset. WAGI is non-streaming: the whole body is buffered before
// the guest starts.
const DefaultMaxRequestBody = 10 << 20

// HealthRoute is answered by the server itself when no configured route
// shadows it.
const HealthRoute = "/healthz"

// Options tune the dispatcher.
type Options struct {
	// DefaultHost supplies SERVER_NAME when a request has no usable
	// Host header.
	DefaultHost string
	// MaxRequestBody caps the request body in bytes; 0 means
	// DefaultMaxRequestBody.
	MaxRequestBody int64
	// RequestTimeout, when non-zero, interrupts guest execution and
	// answers 504 after the wall-clock deadline.
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Server routes requests to handlers. Immutable after New.
type Server struct {
	table   *route.Table
	runner  *runner.Runner
	opts    Options
	log     *zap.Logger
	maxBody int64
}

// New builds the server: it wires the runner, discovers sub-routes, and
// freezes the routing table. Handlers must already be validated and
// pre-compiled by the config loader.
func New(ctx context.Context, eng *engine.Engine, handlers []*route.Handler, opts Options) (*Server, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	run, err := runner.New(ctx, eng, log)
	if err != nil {
		return nil, err
	}

	expanded, err := discoverSubRoutes(ctx, run, handlers, log)
	if err != nil {
		return nil, err
	}

	table := route.NewTable(expanded)
	for _, h := range table.Entries() {
		log.Info("route registered",
			zap.String("route", h.Pattern.String()),
			zap.String("module", h.Module.Name),
			zap.String("entrypoint", h.Entrypoint))
	}

	maxBody := opts.MaxRequestBody
	if maxBody <= 0 {
		maxBody = DefaultMaxRequestBody
	}

	return &Server{
		table:   table,
		runner:  run,
		opts:    opts,
		log:     log,
		maxBody: maxBody,
	}, nil
}

// Table exposes the frozen routing table for inspection tooling.
func (s *Server) Table() *route.Table { return s.table }

// discoverSubRoutes runs each module's optional _routes export with
// empty stdin and the handler's static environment, and derives one
// handler per declared sub-route. Any parse or execution problem aborts
// startup.
func discoverSubRoutes(ctx context.Context, run *runner.Runner, handlers []*route.Handler, log *zap.Logger) ([]*route.Handler, error) {
	out := make([]*route.Handler, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, h)
		if !h.Module.HasExport("_routes") {
			continue
		}

		probe := h.Derive(h.Pattern, "_routes")
		res, err := run.Run(ctx, probe, nil, h.Environment, nil)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseDiscover, errors.KindTrap, err, "invoke _routes").WithRoute(h.Pattern.String()).WithRef(h.Module.Name)
		}
		if !res.ExitOK {
			return nil, errors.Wrap(errors.PhaseDiscover, errors.KindTrap, res.Err, "_routes failed").WithRoute(h.Pattern.String()).WithRef(h.Module.Name)
		}

		subs, err := route.ParseSubRoutes(string(res.Stdout))
		if err != nil {
			return nil, err
		}
		for _, sub := range subs {
			if !h.Module.HasExport(sub.Entrypoint) {
				return nil, errors.NotFound(errors.PhaseDiscover, "entrypoint", sub.Entrypoint).WithRoute(h.Pattern.String()).WithRef(h.Module.Name)
			}
			derived := h.Derive(h.Pattern.Sub(sub.Pattern), sub.Entrypoint)
			out = append(out, derived)
			log.Info("sub-route discovered",
				zap.String("route", derived.Pattern.String()),
				zap.String("entrypoint", derived.Entrypoint),
				zap.String("module", h.Module.Name))
		}
	}
	return out, nil
}
