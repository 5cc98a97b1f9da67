package version

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		semver bool
	}{
		{name: "plain semver", input: "1.25.0", semver: true},
		{name: "v prefix", input: "v1.25.0", semver: true},
		{name: "prerelease", input: "1.2.3-rc.1", semver: true},
		{name: "build metadata", input: "1.2.3+build.5", semver: true},
		{name: "coerced two-part", input: "v1.5-stable", semver: true},
		{name: "opaque", input: "latest", semver: false},
		{name: "opaque date tag", input: "2024-06-01-nightly", semver: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Parse(tt.input)
			if v.IsSemver() != tt.semver {
				t.Errorf("Parse(%q).IsSemver() = %v, want %v", tt.input, v.IsSemver(), tt.semver)
			}
			if v.String() != tt.input {
				t.Errorf("Parse(%q).String() = %q, want original retained", tt.input, v.String())
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{name: "equal", a: "1.2.3", b: "1.2.3", want: 0},
		{name: "v prefix ignored", a: "v1.2.3", b: "1.2.3", want: 0},
		{name: "patch greater", a: "1.2.4", b: "1.2.3", want: 1},
		{name: "minor lesser", a: "1.2.9", b: "1.3.0", want: -1},
		{name: "prerelease below release", a: "1.2.3-rc.1", b: "1.2.3", want: -1},
		{name: "numeric prerelease below alphanumeric", a: "1.2.3-1", b: "1.2.3-alpha", want: -1},
		{name: "build metadata ignored", a: "1.2.3+a", b: "1.2.3+b", want: 0},
		{name: "two-part tags coerce", a: "v1.10-stable", b: "v1.5-stable", want: 1},
		{name: "opaque lexical", a: "alpine", b: "bookworm", want: -1},
		{name: "opaque equal", a: "latest", b: "latest", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(Parse(tt.a), Parse(tt.b))
			if sign(got) != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want sign %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name               string
		current, candidate string
		want               Change
	}{
		{name: "patch", current: "1.25.0", candidate: "1.25.1", want: ChangePatch},
		{name: "minor", current: "1.25.0", candidate: "1.26.0", want: ChangeMinor},
		{name: "major", current: "1.25.0", candidate: "2.0.0", want: ChangeMajor},
		{name: "equal", current: "1.25.0", candidate: "v1.25.0", want: ChangeEqual},
		{name: "downgrade", current: "1.25.1", candidate: "1.25.0", want: ChangeDowngrade},
		{name: "prerelease to release is patch", current: "1.2.3-rc.1", candidate: "1.2.3", want: ChangePatch},
		{name: "opaque candidate", current: "1.25.0", candidate: "latest", want: ChangeIncomparable},
		{name: "opaque current", current: "latest", candidate: "1.25.0", want: ChangeIncomparable},
		{name: "opaque equal", current: "latest", candidate: "latest", want: ChangeEqual},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(Parse(tt.current), Parse(tt.candidate))
			if got != tt.want {
				t.Errorf("Classify(%q, %q) = %v, want %v", tt.current, tt.candidate, got, tt.want)
			}
		})
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
