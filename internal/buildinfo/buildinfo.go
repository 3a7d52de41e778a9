// Package buildinfo carries the version stamped in at link time.
package buildinfo

// Version is overridden via -ldflags "-X westkit/internal/buildinfo.Version=...".
var Version = "dev"
