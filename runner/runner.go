package runner

import (
	"bytes"
	"context"
	stderrors "errors"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wagi/engine"
	"github.com/wippyai/wagi/errors"
	"github.com/wippyai/wagi/route"
)

// Runner instantiates handler modules on the shared engine.
type Runner struct {
	engine *engine.Engine
	log    *zap.Logger
}

// Result is the outcome of one guest invocation. Stdout is captured even
// when the guest trapped or exited non-zero: response parsing decides
// whether the module produced something usable before failing.
type Result struct {
	ExitOK bool
	Stdout []byte
	Stderr []byte
	Err    error // the failure behind ExitOK == false
}

// New creates a runner and registers the outbound-HTTP host module on
// the engine's runtime.
func New(ctx context.Context, eng *engine.Engine, log *zap.Logger) (*Runner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := instantiateOutbound(ctx, eng.Runtime()); err != nil {
		return nil, errors.Wrap(errors.PhaseCompile, errors.KindInstantiation, err, "register outbound http host module")
	}
	return &Runner{engine: eng, log: log}, nil
}

// Run invokes the handler's entrypoint with stdin wired to stdin, the
// given environment (already composed: global overlay, handler
// environment, CGI variables) and argv. The host process environment is
// never visible to the guest.
func (r *Runner) Run(ctx context.Context, h *route.Handler, stdin []byte, env map[string]string, args []string) (*Result, error) {
	var stdout, stderr bytes.Buffer

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStdin(bytes.NewReader(stdin)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithArgs(args...).
		WithStartFunctions() // the entrypoint is called explicitly below
	for k, v := range env {
		cfg = cfg.WithEnv(k, v)
	}

	fs := wazero.NewFSConfig()
	for guest, host := range h.Volumes {
		fs = fs.WithDirMount(host, guest)
	}
	cfg = cfg.WithFSConfig(fs)

	state := newOutboundState(h.AllowedHosts, h.MaxHTTPConcurrency)
	ctx = withOutboundState(ctx, state)

	mod, err := r.engine.Runtime().InstantiateModule(ctx, h.Module.Compiled(), cfg)
	if err != nil {
		return nil, errors.Instantiation(err).WithRef(h.Module.Name)
	}
	defer mod.Close(ctx)

	entrypoint := h.Entrypoint
	if entrypoint == "" {
		entrypoint = route.DefaultEntrypoint
	}
	fn := mod.ExportedFunction(entrypoint)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRun, "entrypoint", entrypoint).WithRef(h.Module.Name)
	}

	_, callErr := fn.Call(ctx)
	res := &Result{
		ExitOK: true,
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	if callErr != nil {
		res.ExitOK, res.Err = classify(ctx, callErr)
	}

	if len(res.Stderr) > 0 {
		r.log.Warn("guest stderr",
			zap.String("module", h.Module.Name),
			zap.String("entrypoint", entrypoint),
			zap.ByteString("stderr", res.Stderr))
	}
	return res, nil
}

// classify maps a Call error to the result state. A clean exit(0) is
// success; everything else keeps the captured stdout but marks failure.
func classify(ctx context.Context, callErr error) (ok bool, err error) {
	var exitErr *sys.ExitError
	if stderrors.As(callErr, &exitErr) {
		switch exitErr.ExitCode() {
		case 0:
			return true, nil
		case sys.ExitCodeDeadlineExceeded:
			return false, errors.Timeout("execution deadline exceeded")
		case sys.ExitCodeContextCanceled:
			return false, errors.Trap("execution cancelled", callErr)
		default:
			return false, errors.Trap("non-zero exit", callErr)
		}
	}
	if ctx.Err() == context.DeadlineExceeded {
		return false, errors.Timeout("execution deadline exceeded")
	}
	return false, errors.Trap("guest trap", callErr)
}
