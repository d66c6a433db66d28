// Package catalog drives the catalog tool (calibredb) against a local library
// directory or a Content Server URL.
//
// The Client builds every invocation, classifies the failures an operator can
// act on (library busy, unknown remote library) and filters listings down to
// the items a run should consider.
package catalog
