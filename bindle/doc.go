// Package bindle reads module and asset parcels from a bindle: a
// content-addressed parcel store where an invoice names a version and
// lists parcels grouped by role.
//
// Two sources are supported: a remote bindle server (invoices at
// /_i/<id>, parcel content at /_i/<id>@<sha256>) and a standalone export
// on disk (invoice.toml next to a parcels/ directory). Parcel content is
// always verified against the invoice label's SHA-256 before use.
//
// The Emplacer stages non-module parcels marked as files into the asset
// cache so they can be mounted into guests as an ordinary volume.
package bindle
