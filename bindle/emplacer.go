package bindle

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wagi/errors"
)

// Emplacer materializes a bindle's assets on local disk before startup.
// File parcels required by a handler parcel are staged into the asset
// cache and exposed to the module as a synthetic volume mounted at "/",
// collapsing bindle file-mounting into the ordinary volume mechanism.
type Emplacer struct {
	cacheDir string
	src      Source
	log      *zap.Logger
}

// HandlerBits is what a routable parcel needs at runtime: its module
// bytes and the volumes carrying its staged file parcels.
type HandlerBits struct {
	Module  []byte
	Volumes map[string]string // guest path -> host path
}

func NewEmplacer(cacheDir string, src Source, log *zap.Logger) (*Emplacer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, errors.IO(errors.PhaseConfig, "create asset cache directory "+cacheDir, err)
	}
	return &Emplacer{cacheDir: cacheDir, src: src, log: log}, nil
}

// Emplace fetches the module parcel and stages its required file parcels
// under the asset cache, keyed by the handler parcel's own hash so two
// handlers never share a staging directory.
func (e *Emplacer) Emplace(ctx context.Context, inv *Invoice, handler *Parcel) (*HandlerBits, error) {
	module, err := e.src.Parcel(ctx, handler.Label.SHA256)
	if err != nil {
		return nil, err
	}
	bits := &HandlerBits{Module: module}

	var assetDir string
	for _, required := range inv.RequiredParcels(handler) {
		if !required.IsFile() {
			continue
		}
		if assetDir == "" {
			assetDir = filepath.Join(e.cacheDir, handler.Label.SHA256, "assets")
			if err := os.MkdirAll(assetDir, 0o755); err != nil {
				return nil, errors.IO(errors.PhaseConfig, "create asset directory "+assetDir, err)
			}
			bits.Volumes = map[string]string{"/": assetDir}
		}
		if err := e.stage(ctx, assetDir, required); err != nil {
			return nil, err
		}
	}
	return bits, nil
}

// stage writes one file parcel into dir under its label name.
func (e *Emplacer) stage(ctx context.Context, dir string, p *Parcel) error {
	name := cleanParcelName(p.Label.Name)
	if name == "" {
		return errors.InvalidInput(errors.PhaseConfig, "parcel %s has no usable file name", p.Label.SHA256)
	}
	dest := filepath.Join(dir, name)
	if parent := filepath.Dir(dest); parent != dir {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return errors.IO(errors.PhaseConfig, "create asset subdirectory "+parent, err)
		}
	}

	// A parcel already staged with matching content is left alone; the
	// hash check on fetch makes the cache safe to reuse across restarts.
	if existing, err := os.ReadFile(dest); err == nil {
		if _, err := verify(dest, p.Label.SHA256, existing); err == nil {
			return nil
		}
	}

	data, err := e.src.Parcel(ctx, p.Label.SHA256)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return errors.IO(errors.PhaseConfig, "write asset "+dest, err)
	}
	e.log.Debug("staged bindle asset",
		zap.String("parcel", p.Label.Name),
		zap.String("sha256", p.Label.SHA256[:12]),
		zap.String("dest", dest))
	return nil
}

// cleanParcelName confines a parcel name to a relative path inside the
// staging directory.
func cleanParcelName(name string) string {
	name = strings.TrimPrefix(name, "/")
	cleaned := filepath.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return ""
	}
	return cleaned
}
