package loader

import (
	"context"
	"encoding/json"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content"
	"oras.land/oras-go/v2/registry/remote"

	"github.com/wippyai/wagi/errors"
)

// WasmLayerMediaType is the layer media type that marks an image layer
// as a Wasm module.
const WasmLayerMediaType = "application/vnd.wasm.content.layer.v1+wasm"

// wasmLayer reports whether a layer descriptor carries module bytes.
// Plain application/wasm layers are accepted as well, as some packaging
// tools emit them.
func wasmLayer(desc ocispec.Descriptor) bool {
	return desc.MediaType == WasmLayerMediaType || desc.MediaType == "application/wasm"
}

// resolveOCI fetches an image manifest and extracts its Wasm layer.
func (r *Resolver) resolveOCI(ctx context.Context, ref Ref) ([]byte, error) {
	if cached, ok := r.cachedModule(ref); ok {
		return cached, nil
	}

	repo, err := remote.NewRepository(ref.Image)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseResolve, errors.KindInvalidInput, err, "parse image reference").WithRef(ref.Raw)
	}
	repo.PlainHTTP = r.opts.PlainHTTPRegistries

	_, manifestBytes, err := oras.FetchBytes(ctx, repo, ref.Image, oras.DefaultFetchBytesOptions)
	if err != nil {
		return nil, errors.IO(errors.PhaseResolve, "fetch image manifest", err).WithRef(ref.Raw)
	}
	var manifest ocispec.Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, errors.Wrap(errors.PhaseResolve, errors.KindInvalidInput, err, "parse image manifest").WithRef(ref.Raw)
	}

	for _, layer := range manifest.Layers {
		if !wasmLayer(layer) {
			continue
		}
		data, err := content.FetchAll(ctx, repo.Blobs(), layer)
		if err != nil {
			return nil, errors.IO(errors.PhaseResolve, "fetch wasm layer", err).WithRef(ref.Raw)
		}
		r.log.Debug("fetched oci module",
			zap.String("image", ref.Image),
			zap.String("digest", layer.Digest.String()),
			zap.Int("size", len(data)))
		r.cacheModule(ref, data)
		return data, nil
	}
	return nil, errors.MediaType(ref.Raw, WasmLayerMediaType)
}
