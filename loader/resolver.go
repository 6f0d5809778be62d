package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wagi/bindle"
	"github.com/wippyai/wagi/errors"
	"github.com/wippyai/wagi/wat"
)

// Options configure a Resolver.
type Options struct {
	// BindleServer is the bindle API root used for bindle: references.
	BindleServer string
	// ModuleCacheDir caches remotely-fetched module bytes across
	// restarts. Empty disables the cache.
	ModuleCacheDir string
	// PlainHTTPRegistries fetches OCI images over plain HTTP, for
	// local registries in development.
	PlainHTTPRegistries bool
	Logger              *zap.Logger
}

// Resolver materializes module bytes from any reference variant. It is
// pure with respect to the reference: the same reference against the
// same store state yields the same bytes.
type Resolver struct {
	opts Options
	log  *zap.Logger
}

func NewResolver(opts Options) *Resolver {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{opts: opts, log: log}
}

// Resolve turns a reference into raw Wasm bytes. Validation against the
// engine happens at the load step; the resolver only guarantees it never
// returns partial content.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) ([]byte, error) {
	switch ref.Kind {
	case RefLocalFile:
		return r.resolveLocal(ref)
	case RefOCI:
		return r.resolveOCI(ctx, ref)
	case RefBindle:
		return r.resolveBindle(ctx, ref)
	}
	return nil, errors.Unsupported(errors.PhaseResolve, "unknown reference kind").WithRef(ref.Raw)
}

func (r *Resolver) resolveLocal(ref Ref) ([]byte, error) {
	data, err := os.ReadFile(ref.Path)
	if err != nil {
		return nil, errors.IO(errors.PhaseResolve, "read module file", err).WithRef(ref.Raw)
	}
	if strings.HasSuffix(ref.Path, ".wat") {
		bin, err := wat.Compile(string(data))
		if err != nil {
			return nil, errors.Wrap(errors.PhaseResolve, errors.KindInvalidInput, err, "expand wat source").WithRef(ref.Raw)
		}
		return bin, nil
	}
	return data, nil
}

// resolveBindle fetches the invoice and uses its single routable parcel.
// Invoices with several routable parcels must be served as bindle-derived
// configuration instead, where each parcel gets its own route.
func (r *Resolver) resolveBindle(ctx context.Context, ref Ref) ([]byte, error) {
	if cached, ok := r.cachedModule(ref); ok {
		return cached, nil
	}
	if r.opts.BindleServer == "" {
		return nil, errors.InvalidInput(errors.PhaseResolve, "no bindle server configured").WithRef(ref.Raw)
	}
	client, err := bindle.NewClient(r.opts.BindleServer, ref.Invoice)
	if err != nil {
		return nil, err
	}
	inv, err := client.Invoice(ctx)
	if err != nil {
		return nil, err
	}
	top := inv.TopModules()
	if len(top) != 1 {
		return nil, errors.InvalidInput(errors.PhaseResolve,
			"invoice has %d routable parcels, expected exactly one", len(top)).WithRef(ref.Raw)
	}
	data, err := client.Parcel(ctx, top[0].Label.SHA256)
	if err != nil {
		return nil, err
	}
	r.cacheModule(ref, data)
	return data, nil
}

// cachedModule returns previously-fetched bytes for a remote reference.
// The cache key is the hash of the reference string, so a changed tag or
// invoice id never serves stale content under the old name.
func (r *Resolver) cachedModule(ref Ref) ([]byte, bool) {
	if r.opts.ModuleCacheDir == "" {
		return nil, false
	}
	data, err := os.ReadFile(r.cachePath(ref))
	if err != nil {
		return nil, false
	}
	r.log.Debug("module cache hit", zap.String("ref", ref.Raw))
	return data, true
}

func (r *Resolver) cacheModule(ref Ref, data []byte) {
	if r.opts.ModuleCacheDir == "" {
		return
	}
	path := r.cachePath(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.log.Warn("module cache unavailable", zap.Error(err))
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.log.Warn("module cache write failed", zap.String("ref", ref.Raw), zap.Error(err))
	}
}

func (r *Resolver) cachePath(ref Ref) string {
	sum := sha256.Sum256([]byte(ref.Raw))
	return filepath.Join(r.opts.ModuleCacheDir, hex.EncodeToString(sum[:])+".wasm")
}
