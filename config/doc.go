// Package config loads the routing configuration and validates it into
// handler specs, ready for the routing table.
//
// Two sources are accepted: a module manifest (a TOML file with
// [[module]] entries) or a bindle invoice whose default-group Wasm
// parcels become entries. Validation fails fast in a fixed order: route
// syntax, duplicate routes, volume host paths, module resolution, then
// engine pre-compilation. The first offending route or reference is
// named in the error; startup never proceeds past a bad entry.
package config
