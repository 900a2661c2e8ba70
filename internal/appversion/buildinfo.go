// Package appversion exposes the version string stamped into the binary.
package appversion

// version is overridden by the release build via -ldflags; "dev" marks a
// local build.
var version = "dev" //nolint:gochecknoglobals // ldflags target must be package-level

// String reports the stamped version.
func String() string {
	return version
}
