// Package metadata models catalog records and derives the two values the
// pipeline decides with: a completeness score and a content fingerprint.
//
// Records come from the catalog tool's machine-readable listing, whose field
// shapes vary between versions and between local and remote libraries
// (arrays vs delimited strings, numbers vs strings). The normalizers here
// accept every shape seen in practice and never fail on a missing field.
package metadata
