package build

import (
	"fmt"
	"strings"
)

const (
	// AppMajor is the major version component.
	AppMajor uint = 0

	// AppMinor is the minor version component.
	AppMinor uint = 1

	// AppPatch is the patch version component.
	AppPatch uint = 0

	// AppPreRelease is appended after a dash when non-empty.
	AppPreRelease = "dev"
)

// These are set at link time with -ldflags "-X".
var (
	// Commit is the tag or describe string the binary was built from.
	Commit string

	// CommitHash is the full commit hash.
	CommitHash string

	// GoVersion is the toolchain the binary was built with.
	GoVersion string

	// RawTags is a comma separated list of build tags.
	RawTags string
)

// Version returns the semantic version of the build.
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", AppMajor, AppMinor, AppPatch)
	if AppPreRelease != "" {
		version += "-" + AppPreRelease
	}

	return version
}

// Tags returns the build tags the binary was built with.
func Tags() []string {
	if RawTags == "" {
		return nil
	}

	return strings.Split(RawTags, ",")
}

// VersionString returns the version, with the commit when known.
func VersionString() string {
	switch {
	case Commit != "":
		return fmt.Sprintf("%s commit=%s", Version(), Commit)

	case CommitHash != "":
		return fmt.Sprintf("%s commit=%s", Version(), CommitHash)

	default:
		return Version()
	}
}
