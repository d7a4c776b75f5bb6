// Package buildinfo carries the version stamped into zipmark binaries.
package buildinfo

import (
	"fmt"

	"github.com/cordum/zipmark/core/infra/logging"
)

// Set at link time with -ldflags "-X".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a single-line build summary.
func Info() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", Version, Commit, Date)
}

// Fields returns the build summary as logging key/value pairs.
func Fields() []any {
	return []any{"version", Version, "commit", Commit, "date", Date}
}

// Log writes the startup line for service: the build summary followed by
// extra key/value pairs describing how the binary was configured.
func Log(service string, extra ...any) {
	logging.Info(service, "starting", append(Fields(), extra...)...)
}
