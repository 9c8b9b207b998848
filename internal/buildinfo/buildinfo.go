// Package buildinfo provides build version and metadata information.
package buildinfo

import "runtime/debug"

// Version metadata is injected at build time via ldflags. When the version
// is left empty, the module version recorded by the Go toolchain is used.
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

// Summary returns a human-readable version summary string.
func Summary() string {
	version := Version
	if version == "" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			version = bi.Main.Version
		}
	}
	if version == "" {
		version = "dev"
	}
	parts := version
	if Commit != "" {
		parts += " (" + Commit
		if Date != "" {
			parts += " " + Date
		}
		parts += ")"
	} else if Date != "" {
		parts += " (" + Date + ")"
	}
	return parts
}
