package config

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/wagi/bindle"
	"github.com/wippyai/wagi/engine"
	"github.com/wippyai/wagi/errors"
	"github.com/wippyai/wagi/loader"
	"github.com/wippyai/wagi/route"
)

// Settings select the configuration source and the knobs shared by all
// handlers. Exactly one of ManifestPath or BindleID must be set.
type Settings struct {
	ManifestPath string

	BindleID            string
	BindleServer        string
	BindleStandaloneDir string

	ModuleCacheDir      string
	AssetCacheDir       string
	PlainHTTPRegistries bool

	// GlobalEnv is applied to every handler beneath its own environment.
	GlobalEnv map[string]string

	Logger *zap.Logger
}

// Load builds validated handler specs from the configured source. Every
// module is resolved and pre-compiled before Load returns; a failure on
// any entry aborts the whole load.
func Load(ctx context.Context, eng *engine.Engine, s Settings) ([]*route.Handler, error) {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	switch {
	case s.ManifestPath != "" && s.BindleID != "":
		return nil, errors.InvalidInput(errors.PhaseConfig, "configure either a manifest or a bindle, not both")
	case s.ManifestPath != "":
		return loadManifest(ctx, eng, s, log)
	case s.BindleID != "":
		return loadBindle(ctx, eng, s, log)
	}
	return nil, errors.InvalidInput(errors.PhaseConfig, "no configuration source: set a manifest path or a bindle id")
}

// entry is a source-independent handler description awaiting validation.
type entry struct {
	routeStr           string
	ref                string // for diagnostics
	bytes              func(ctx context.Context) ([]byte, error)
	entrypoint         string
	volumes            map[string]string
	environment        map[string]string
	allowedHosts       []string
	httpMaxConcurrency uint32
}

func loadManifest(ctx context.Context, eng *engine.Engine, s Settings, log *zap.Logger) ([]*route.Handler, error) {
	m, err := ReadManifest(s.ManifestPath)
	if err != nil {
		return nil, err
	}

	resolver := loader.NewResolver(loader.Options{
		BindleServer:        s.BindleServer,
		ModuleCacheDir:      s.ModuleCacheDir,
		PlainHTTPRegistries: s.PlainHTTPRegistries,
		Logger:              log,
	})

	entries := make([]*entry, 0, len(m.Modules))
	for _, me := range m.Modules {
		me := me
		ref, err := loader.ParseRef(me.Module)
		if err != nil {
			return nil, annotate(err, me.Route, me.Module)
		}
		perEntry := resolver
		if me.BindleServer != "" {
			perEntry = loader.NewResolver(loader.Options{
				BindleServer:        me.BindleServer,
				ModuleCacheDir:      s.ModuleCacheDir,
				PlainHTTPRegistries: s.PlainHTTPRegistries,
				Logger:              log,
			})
		}
		entries = append(entries, &entry{
			routeStr:           me.Route,
			ref:                me.Module,
			bytes:              func(ctx context.Context) ([]byte, error) { return perEntry.Resolve(ctx, ref) },
			entrypoint:         me.Entrypoint,
			volumes:            me.Volumes,
			environment:        me.Environment,
			allowedHosts:       me.AllowedHosts,
			httpMaxConcurrency: me.HTTPMaxConcurrency,
		})
	}
	return validate(ctx, eng, s, entries)
}

func loadBindle(ctx context.Context, eng *engine.Engine, s Settings, log *zap.Logger) ([]*route.Handler, error) {
	var src bindle.Source
	var err error
	if s.BindleStandaloneDir != "" {
		src, err = bindle.OpenStandalone(s.BindleStandaloneDir)
	} else {
		if s.BindleServer == "" {
			return nil, errors.InvalidInput(errors.PhaseConfig, "bindle id %s needs a bindle server or standalone directory", s.BindleID)
		}
		src, err = bindle.NewClient(s.BindleServer, s.BindleID)
	}
	if err != nil {
		return nil, err
	}

	inv, err := src.Invoice(ctx)
	if err != nil {
		return nil, err
	}

	emplacer, err := bindle.NewEmplacer(s.AssetCacheDir, src, log)
	if err != nil {
		return nil, err
	}

	top := inv.TopModules()
	if len(top) == 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "invoice %s has no routable wasm parcels", inv.ID())
	}

	var entries []*entry
	for _, parcel := range top {
		parcel := parcel
		routeStr := parcel.WagiRoute()
		if routeStr == "" {
			return nil, errors.InvalidInput(errors.PhaseConfig,
				"parcel %s has no feature.wagi.route annotation", parcel.Label.Name).WithRef(inv.ID())
		}
		bits, err := emplacer.Emplace(ctx, inv, parcel)
		if err != nil {
			return nil, annotate(err, routeStr, parcel.Label.Name)
		}
		entries = append(entries, &entry{
			routeStr:     routeStr,
			ref:          inv.ID() + "@" + parcel.Label.Name,
			bytes:        func(context.Context) ([]byte, error) { return bits.Module, nil },
			entrypoint:   parcel.WagiEntrypoint(),
			volumes:      bits.Volumes,
			allowedHosts: parcel.WagiAllowedHosts(),
		})
	}
	return validate(ctx, eng, s, entries)
}

// validate applies the startup rules in order, failing fast: route
// syntax, duplicate routes, volume host paths, module resolution, engine
// pre-compilation. Handlers come back unordered; ordering is the routing
// table's job.
func validate(ctx context.Context, eng *engine.Engine, s Settings, entries []*entry) ([]*route.Handler, error) {
	patterns := make([]route.Pattern, len(entries))
	for i, e := range entries {
		p, err := route.ParsePattern(e.routeStr)
		if err != nil {
			return nil, annotate(err, e.routeStr, e.ref)
		}
		patterns[i] = p
	}

	seen := make(map[string]bool, len(entries))
	for i := range entries {
		key := patterns[i].String()
		if seen[key] {
			return nil, errors.DuplicateRoute(key)
		}
		seen[key] = true
	}

	for _, e := range entries {
		for guest, host := range e.volumes {
			st, err := os.Stat(host)
			if err != nil {
				return nil, errors.UnreachableVolume(e.routeStr, guest, host, err)
			}
			if !st.IsDir() {
				return nil, errors.UnreachableVolume(e.routeStr, guest, host, nil)
			}
		}
	}

	resolved := make([][]byte, len(entries))
	for i, e := range entries {
		data, err := e.bytes(ctx)
		if err != nil {
			return nil, annotate(err, e.routeStr, e.ref)
		}
		resolved[i] = data
	}

	handlers := make([]*route.Handler, 0, len(entries))
	for i, e := range entries {
		mod, err := eng.Load(ctx, e.ref, resolved[i])
		if err != nil {
			return nil, annotate(err, e.routeStr, e.ref)
		}

		entrypoint := e.entrypoint
		if entrypoint == "" {
			entrypoint = route.DefaultEntrypoint
		}

		env := make(map[string]string, len(s.GlobalEnv)+len(e.environment))
		for k, v := range s.GlobalEnv {
			env[k] = v
		}
		for k, v := range e.environment {
			env[k] = v
		}

		handlers = append(handlers, &route.Handler{
			Pattern:            patterns[i],
			Module:             mod,
			Entrypoint:         entrypoint,
			Volumes:            e.volumes,
			Environment:        env,
			AllowedHosts:       e.allowedHosts,
			MaxHTTPConcurrency: e.httpMaxConcurrency,
		})
	}
	return handlers, nil
}

// annotate stamps route/ref context onto structured errors so startup
// failures name the offending entry.
func annotate(err error, routeStr, ref string) error {
	e, ok := err.(*errors.Error)
	if !ok {
		return err
	}
	if e.Route == "" {
		e = e.WithRoute(routeStr)
	}
	if e.Ref == "" {
		e = e.WithRef(ref)
	}
	return e
}
