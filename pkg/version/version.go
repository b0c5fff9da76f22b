// Package version holds the build version of the application.
package version

// Version is overridden at build time via -ldflags "-X bharatvista/pkg/version.Version=...".
var Version = "v0.3.1"
