// Package fetch wraps the metadata download tool (fetch-ebook-metadata),
// which writes an OPF document and optionally a cover image for one item.
package fetch
