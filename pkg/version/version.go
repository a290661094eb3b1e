// Package version holds build version information.
package version

// Version is the current AudioPages release.
const Version = "0.4.2"
