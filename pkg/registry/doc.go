// Package registry implements the package catalog: name and version
// lookup, catalog caching, and resolution of archive download locations.
//
// Catalog lookups are byte-exact. "Serde" and "serde" are different
// packages, and a version string must match exactly as published.
package registry
