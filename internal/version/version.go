package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/timelinebridge"

// buildVersion is set via -ldflags "-X pkt.systems/timelinebridge/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running binary.
type Info struct {
	Module   string
	Version  string
	Revision string
	Time     time.Time
	Dirty    bool
}

// String renders "<module> <version>".
func (i Info) String() string {
	return i.Module + " " + i.Version
}

// Read collects build information from the linker and the Go runtime.
func Read() Info {
	info, _ := debug.ReadBuildInfo()
	return fromBuildInfo(info, buildVersion)
}

// Current returns the best available version string.
func Current() string {
	return Read().Version
}

// Module returns the module path from build info when available.
func Module() string {
	return Read().Module
}

func fromBuildInfo(info *debug.BuildInfo, override string) Info {
	out := Info{Module: defaultModule, Version: "v0.0.0-unknown"}
	if info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		readVCS(info, &out)
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			out.Version = v
		} else if pseudo := pseudoVersion(out); pseudo != "" {
			out.Version = pseudo
		}
	}
	if v := strings.TrimSpace(override); v != "" {
		out.Version = v
	}
	out.Version = strings.TrimSuffix(out.Version, "+dirty")
	return out
}

func readVCS(info *debug.BuildInfo, out *Info) {
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			out.Revision = setting.Value
		case "vcs.time":
			if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				out.Time = parsed.UTC()
			}
		case "vcs.modified":
			out.Dirty = setting.Value == "true"
		}
	}
}

func pseudoVersion(info Info) string {
	if info.Revision == "" || info.Time.IsZero() {
		return ""
	}
	rev := info.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return "v0.0.0-" + info.Time.Format("20060102150405") + "-" + rev
}
