// Package version reports the revision this binary was built from, for
// startup logs and user-agent strings.
package version

import "runtime/debug"

// commit is injected via -ldflags "-X .../pkg/version.commit=<sha>" for
// builds without a .git directory (container builds). When empty, the
// revision comes from the module build info instead.
var commit string

// Commit is the short (8 char) VCS revision, or "dev" when the build
// carries no revision (go test, non-git checkouts).
var Commit = resolve()

// Full returns the "webforge/<commit>" form.
func Full() string {
	return "webforge/" + Commit
}

func resolve() string {
	sha := commit
	if sha == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					sha = s.Value
					break
				}
			}
		}
	}
	if sha == "" {
		return "dev"
	}
	if len(sha) > 8 {
		sha = sha[:8]
	}
	return sha
}
