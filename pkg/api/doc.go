// Package api exposes the registry's HTTP surface: package publishing,
// archive downloads, and download statistics.
package api
