// Package version records the build version of the signal control
// service.
package version

// Version is overridden at build time via -ldflags.
var Version = "dev"
