package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/wagi/errors"
)

// Manifest is the file-based routing configuration.
type Manifest struct {
	Modules []ModuleEntry `toml:"module"`
}

// ModuleEntry is one [[module]] block. Unknown fields are reserved and
// ignored (the deprecated repository field among them), so older
// manifests keep loading.
type ModuleEntry struct {
	Route              string            `toml:"route"`
	Module             string            `toml:"module"`
	Entrypoint         string            `toml:"entrypoint"`
	Volumes            map[string]string `toml:"volumes"`
	Environment        map[string]string `toml:"environment"`
	AllowedHosts       []string          `toml:"allowed_hosts"`
	HTTPMaxConcurrency uint32            `toml:"http_max_concurrency"`
	BindleServer       string            `toml:"bindle_server"`
}

// ReadManifest parses a module manifest file.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IO(errors.PhaseConfig, "read manifest "+path, err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse manifest "+path)
	}
	if len(m.Modules) == 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, "manifest %s declares no modules", path)
	}
	return &m, nil
}
