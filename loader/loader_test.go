package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/wagi/wasm"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		kind    RefKind
		detail  string
		wantErr bool
	}{
		{"bare_path", "modules/hello.wasm", RefLocalFile, "modules/hello.wasm", false},
		{"file_url", "file:///srv/hello.wasm", RefLocalFile, "/srv/hello.wasm", false},
		{"oci", "oci:ghcr.io/example/hello:1.0", RefOCI, "ghcr.io/example/hello:1.0", false},
		{"oci_slashes", "oci://ghcr.io/example/hello:1.0", RefOCI, "ghcr.io/example/hello:1.0", false},
		{"bindle", "bindle:example/app/1.2.3", RefBindle, "example/app/1.2.3", false},
		{"empty", "", 0, "", true},
		{"unknown_scheme", "ftp://host/mod.wasm", 0, "", true},
		{"bare_file_scheme", "file://", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseRef(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRef failed: %v", err)
			}
			if ref.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", ref.Kind, tt.kind)
			}
			var got string
			switch ref.Kind {
			case RefLocalFile:
				got = ref.Path
			case RefOCI:
				got = ref.Image
			case RefBindle:
				got = ref.Invoice
			}
			if got != tt.detail {
				t.Errorf("detail = %q, want %q", got, tt.detail)
			}
		})
	}
}

func TestResolveLocalFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	path := filepath.Join(dir, "mod.wasm")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(Options{})
	ref, err := ParseRef(path)
	if err != nil {
		t.Fatalf("ParseRef failed: %v", err)
	}
	data, err := r.Resolve(context.Background(), ref)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if string(data) != string(content) {
		t.Error("bytes changed during resolution")
	}
}

func TestResolveWatExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.wat")
	if err := os.WriteFile(path, []byte(`(module (func (export "_start")))`), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(Options{})
	ref, _ := ParseRef(path)
	data, err := r.Resolve(context.Background(), ref)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !wasm.IsModule(data) {
		t.Error("wat source was not expanded to binary")
	}
	if !wasm.HasExportedFunction(data, "_start") {
		t.Error("_start export missing after expansion")
	}
}

func TestResolveMalformedWat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.wat")
	if err := os.WriteFile(path, []byte("(module"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewResolver(Options{})
	ref, _ := ParseRef(path)
	if _, err := r.Resolve(context.Background(), ref); err == nil {
		t.Error("expected error for malformed wat")
	}
}

func TestResolveMissingFile(t *testing.T) {
	r := NewResolver(Options{})
	ref, _ := ParseRef(filepath.Join(t.TempDir(), "absent.wasm"))
	if _, err := r.Resolve(context.Background(), ref); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestModuleCache(t *testing.T) {
	cache := t.TempDir()
	r := NewResolver(Options{ModuleCacheDir: cache})
	ref := Ref{Kind: RefOCI, Raw: "oci:example/mod:1", Image: "example/mod:1"}

	if _, ok := r.cachedModule(ref); ok {
		t.Fatal("cache should start empty")
	}
	r.cacheModule(ref, []byte("bytes"))
	data, ok := r.cachedModule(ref)
	if !ok || string(data) != "bytes" {
		t.Errorf("cache round trip failed: %q, %v", data, ok)
	}

	// A different reference never sees another reference's entry.
	other := Ref{Kind: RefOCI, Raw: "oci:example/mod:2", Image: "example/mod:2"}
	if _, ok := r.cachedModule(other); ok {
		t.Error("cache key collision across references")
	}
}
