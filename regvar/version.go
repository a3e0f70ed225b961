// Package regvar provides the version of a regdomain build and helpers shared
// by packages that open databases.
package regvar

import (
	"runtime/debug"
	"time"
)

// Version is set at runtime based on the Go module used to build.
var Version = "(devel)"

func init() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	Version = buildInfo.Main.Version
	if Version != "(devel)" && Version != "" {
		return
	}
	Version = "(devel)"
	var vcsRev, vcsMod string
	for _, setting := range buildInfo.Settings {
		switch setting.Key {
		case "vcs.revision":
			vcsRev = setting.Value
		case "vcs.modified":
			vcsMod = setting.Value
		}
	}
	if vcsRev == "" {
		return
	}
	Version = vcsRev
	switch vcsMod {
	case "false":
	case "true":
		Version += "+modifications"
	default:
		Version += "+unknown"
	}
}

// UserAgent is used for outgoing HTTP requests.
func UserAgent() string {
	return "regdomain/" + Version
}

// Started is the time the process started, e.g. as modification time for
// embedded files served over HTTP.
var Started = time.Now()
