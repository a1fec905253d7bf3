package version

import (
	"runtime/debug"
	"strings"
)

var readBuildInfo = debug.ReadBuildInfo

// Resolve returns the version injected at link time, or one derived from
// build info when the binary was built without it ("dev").
func Resolve(injected string) string {
	if injected != "" && injected != "dev" {
		return injected
	}
	info, ok := readBuildInfo()
	if !ok || info == nil {
		return injected
	}
	// `go install module@vX.Y.Z`
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}

	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return injected
	}
	parts := []string{"devel", rev[:min(len(rev), 12)]}
	if dirty {
		parts = append(parts, "dirty")
	}
	return strings.Join(parts, "+")
}
