// Package loader resolves module references to raw Wasm bytes.
//
// A reference is one of a closed set of variants: a local file (bare
// path or file:// URL, with .wat sources expanded to binary), an OCI
// image (oci:...) whose Wasm-typed layer is fetched from the registry,
// or a bindle invoice (bindle:name/version) whose single routable parcel
// supplies the bytes. New sources are added by extending the variant,
// not by growing a polymorphic resolver interface.
//
// Resolution happens only at startup; remote fetches are cached on disk
// under the module cache directory so restarts do not re-download.
package loader
