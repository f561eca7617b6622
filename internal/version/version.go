// Package version carries build metadata injected via -ldflags.
package version

// Version is the semantic version of the build.
var Version = "0.3.0"

// Commit is the git commit SHA of the build.
var Commit = "unknown"
