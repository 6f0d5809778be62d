package loader

import (
	"strings"

	"github.com/wippyai/wagi/errors"
)

// RefKind discriminates the module reference variants.
type RefKind int

const (
	RefLocalFile RefKind = iota
	RefOCI
	RefBindle
)

// Ref is a parsed module reference.
type Ref struct {
	Kind RefKind
	// Raw is the reference as configured, kept for diagnostics.
	Raw string
	// Path is the local file path (RefLocalFile).
	Path string
	// Image is the registry reference without its oci: prefix (RefOCI).
	Image string
	// Invoice is the bindle id "name/version" (RefBindle).
	Invoice string
}

func (r Ref) String() string { return r.Raw }

// ParseRef classifies a module reference string from the manifest:
// file://path, oci:image, bindle:name/version, or a bare path treated
// as a local file.
func ParseRef(s string) (Ref, error) {
	if s == "" {
		return Ref{}, errors.InvalidInput(errors.PhaseConfig, "module reference is empty")
	}
	switch {
	case strings.HasPrefix(s, "file://"):
		path := strings.TrimPrefix(s, "file://")
		if path == "" {
			return Ref{}, errors.InvalidInput(errors.PhaseConfig, "module reference %q has no path", s)
		}
		return Ref{Kind: RefLocalFile, Raw: s, Path: path}, nil
	case strings.HasPrefix(s, "oci:"):
		image := strings.TrimPrefix(s, "oci:")
		image = strings.TrimPrefix(image, "//")
		if image == "" {
			return Ref{}, errors.InvalidInput(errors.PhaseConfig, "module reference %q has no image", s)
		}
		return Ref{Kind: RefOCI, Raw: s, Image: image}, nil
	case strings.HasPrefix(s, "bindle:"):
		id := strings.TrimPrefix(s, "bindle:")
		id = strings.TrimPrefix(id, "//")
		if id == "" {
			return Ref{}, errors.InvalidInput(errors.PhaseConfig, "module reference %q has no invoice id", s)
		}
		return Ref{Kind: RefBindle, Raw: s, Invoice: id}, nil
	case strings.Contains(s, "://"):
		scheme, _, _ := strings.Cut(s, "://")
		return Ref{}, errors.Unsupported(errors.PhaseConfig, "module reference scheme "+scheme).WithRef(s)
	default:
		// No recognizable scheme: a plain local path.
		return Ref{Kind: RefLocalFile, Raw: s, Path: s}, nil
	}
}
