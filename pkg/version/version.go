package version

import (
	"fmt"
	"runtime/debug"
)

// Release of the analyzer; overridden with -ldflags "-X .../pkg/version.version=...".
var version = "2.0.7"

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version,omitempty"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

// Version returns the module version when built from a tagged module, else the release string.
func Version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Sum != "" {
		return info.Main.Version
	}
	return version
}

// Set replaces the release string (tests and local builds).
func Set(v string) {
	if v != "" {
		version = v
	}
}

// Build collects version and VCS details from the embedded build info.
func Build() Info {
	out := Info{Version: Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out.GoVersion = info.GoVersion
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Revision = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}
	return out
}

// String renders a one-line build description.
func (i Info) String() string {
	s := "chi-analyzer " + i.Version
	if i.Revision != "" {
		rev := i.Revision
		if len(rev) > 12 {
			rev = rev[:12]
		}
		s += fmt.Sprintf(" (%s", rev)
		if i.Modified {
			s += ", dirty"
		}
		s += ")"
	}
	if i.GoVersion != "" {
		s += " " + i.GoVersion
	}
	return s
}
