package asset

import (
	"cmp"
	"fmt"
	"regexp"
	"strconv"
)

// Version is a parsed engine version such as 2020.3.34f1.
type Version struct {
	Major, Minor, Patch int
	Type                string // "a", "b", "f", "p", "x" or a vendor suffix
	Build               int
}

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:([a-zA-Z]+)(\d+))?`)

// ParseVersion parses the leading version of s. Trailing vendor text such as
// "c1" after the build number is ignored.
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("unity version %q: unrecognized", s)
	}
	var v Version
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	v.Patch, _ = strconv.Atoi(m[3])
	v.Type = m[4]
	if m[5] != "" {
		v.Build, _ = strconv.Atoi(m[5])
	}
	return v, nil
}

// Compare orders versions by major, minor and patch numbers, then build.
func (v Version) Compare(o Version) int {
	if c := cmp.Compare(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, o.Minor); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Patch, o.Patch); c != 0 {
		return c
	}
	return cmp.Compare(v.Build, o.Build)
}

// Before reports whether v precedes major.minor.patch.
func (v Version) Before(major, minor, patch int) bool {
	return v.Compare(Version{Major: major, Minor: minor, Patch: patch}) < 0
}

func (v Version) String() string {
	if v.Type == "" {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	return fmt.Sprintf("%d.%d.%d%s%d", v.Major, v.Minor, v.Patch, v.Type, v.Build)
}

// usesLegacyCNFlags reports whether a bundle built by engine v marks
// Unity-China encryption with the older archive flag bit.
func (v Version) usesLegacyCNFlags() bool {
	switch {
	case v.Major < 2020:
		return true
	case v.Major == 2020:
		return v.Before(2020, 3, 34)
	case v.Major == 2021:
		return v.Before(2021, 3, 2)
	case v.Major == 2022:
		return v.Before(2022, 1, 1)
	}
	return false
}
