// Package version reports the version of the jokosher binaries.
package version

import "runtime/debug"

// Set at build time with something like:
// go build -ldflags "-X github.com/jokosher/jokosher/version.Version=$(git describe --dirty)"
var Version string

// Hash is the short commit the binary was built from, with -dirty appended
// for a modified tree, or "" outside a checkout.
var Hash = func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var revision string
	var modified bool
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}
	return shortHash(revision, modified)
}()

// String is Version when set and Hash otherwise.
var String = func() string {
	switch {
	case Version != "":
		return Version
	case Hash != "":
		return Hash
	}
	return "devel"
}()

func shortHash(revision string, modified bool) string {
	if revision == "" {
		return ""
	}
	h := revision[:min(7, len(revision))]
	if modified {
		h += "-dirty"
	}
	return h
}
