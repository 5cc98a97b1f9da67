package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Change classifies a candidate version relative to the current one.
type Change int

const (
	ChangeEqual Change = iota
	ChangePatch
	ChangeMinor
	ChangeMajor
	ChangeDowngrade
	ChangeIncomparable
)

func (c Change) String() string {
	switch c {
	case ChangeEqual:
		return "equal"
	case ChangePatch:
		return "patch"
	case ChangeMinor:
		return "minor"
	case ChangeMajor:
		return "major"
	case ChangeDowngrade:
		return "downgrade"
	default:
		return "incomparable"
	}
}

// Version is a parsed tag or chart version. Strings that parse as semantic
// versions get semver ordering; everything else is kept verbatim as an
// opaque string and ordered lexically.
type Version struct {
	Raw string
	sv  *semver.Version
}

// Parse parses a version string. A leading "v" is accepted and the original
// string is retained for output. Build metadata is ignored for comparison.
// The part before any prerelease or build suffix needs at least
// MAJOR.MINOR, so a bare number such as the date prefix of
// "2024-06-01-nightly" stays opaque.
func Parse(s string) Version {
	v := Version{Raw: s}
	trimmed := strings.TrimSpace(s)
	core := trimmed
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	if !strings.Contains(core, ".") {
		return v
	}
	if sv, err := semver.NewVersion(trimmed); err == nil {
		v.sv = sv
	}
	return v
}

// IsSemver reports whether the version parsed as a semantic version.
func (v Version) IsSemver() bool {
	return v.sv != nil
}

func (v Version) String() string {
	return v.Raw
}

// Compare orders two versions. Semver pairs use semver precedence
// (prereleases sort below the same normal version, build metadata is
// ignored); if either side is opaque the raw strings are compared.
func Compare(a, b Version) int {
	if a.sv != nil && b.sv != nil {
		return a.sv.Compare(b.sv)
	}
	return strings.Compare(a.Raw, b.Raw)
}

// Classify describes the candidate relative to current. Opaque versions are
// Incomparable unless the raw strings match.
func Classify(current, candidate Version) Change {
	if current.sv == nil || candidate.sv == nil {
		if current.Raw == candidate.Raw {
			return ChangeEqual
		}
		return ChangeIncomparable
	}

	switch cmp := candidate.sv.Compare(current.sv); {
	case cmp == 0:
		return ChangeEqual
	case cmp < 0:
		return ChangeDowngrade
	}

	if candidate.sv.Major() != current.sv.Major() {
		return ChangeMajor
	}
	if candidate.sv.Minor() != current.sv.Minor() {
		return ChangeMinor
	}
	return ChangePatch
}
